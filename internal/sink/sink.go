package sink

import (
	"context"
	"log/slog"

	"wellwatch/internal/model"
)

// Sink delivers an alert to one external channel. Implementations are
// independently fallible; a failed Send never affects other sinks.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

// LogSink writes alerts to the structured log. Always configured as a
// development fallback when no other sink is enabled.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, alert model.Alert) error {
	if s.logger != nil {
		s.logger.Warn("alert",
			"id", alert.ID,
			"device_id", alert.DeviceID,
			"alert_type", alert.AlertType,
			"severity", alert.Severity,
			"score", alert.Score,
			"reasons", alert.Reasons,
		)
	}
	return nil
}
