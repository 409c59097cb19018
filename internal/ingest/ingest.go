// Package ingest feeds telemetry events into the pipeline channel from the
// enabled transports.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"wellwatch/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.TelemetryEvent, ev model.TelemetryEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event", "device_id", ev.DeviceID, "timestamp", ev.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
