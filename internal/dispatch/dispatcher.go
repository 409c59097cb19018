package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"wellwatch/internal/alerts"
	"wellwatch/internal/config"
	"wellwatch/internal/detector"
	"wellwatch/internal/model"
	"wellwatch/internal/sink"
)

// Counters is the slice of processor statistics the dispatcher updates.
type Counters interface {
	IncAlertsGenerated()
	IncAlertsSuppressed()
	IncProcessingErrors()
}

// Persister optionally writes dispatched alerts to durable storage.
type Persister interface {
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// Dispatcher builds alerts from verdicts and breaches, deduplicates them,
// and fans them out to every configured sink.
//
// Dedup uses a TTL cache keyed by (device_id, alert_type): the first alert
// in a window dispatches, later matches inside the window are suppressed
// but counted. The window slides from the first dispatch rather than
// aligning to wall-clock buckets, so two breaches close together can never
// both dispatch across a bucket edge.
//
// Fan-out is fire-and-forget: each sink gets its own goroutine with a
// bounded timeout, failures are counted and logged, and the caller never
// waits on sink I/O.
type Dispatcher struct {
	cfg      config.DispatchConfig
	sinks    []sink.Sink
	store    *alerts.Store
	dedup    *expirable.LRU[string, struct{}]
	counters Counters
	persist  Persister
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func New(cfg config.DispatchConfig, sinks []sink.Sink, store *alerts.Store, counters Counters, persist Persister, logger *slog.Logger) *Dispatcher {
	size := cfg.DedupCacheSize
	if size <= 0 {
		size = 10000
	}
	window := time.Duration(cfg.DedupWindowSeconds) * time.Second
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		sinks:    sinks,
		store:    store,
		dedup:    expirable.NewLRU[string, struct{}](size, nil, window),
		counters: counters,
		persist:  persist,
		logger:   logger,
	}
}

// DispatchVerdict turns a positive anomaly verdict into an alert. Returns
// true when the alert was dispatched, false when suppressed or ignored.
func (d *Dispatcher) DispatchVerdict(ev model.TelemetryEvent, v model.AnomalyVerdict) bool {
	if !v.IsAnomaly {
		return false
	}
	alert := model.Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  ev.DeviceID,
		AlertType: alertTypeFor(v),
		Severity:  severityFor(v),
		Score:     v.Score,
		Reasons:   v.Reasons,
		Payload: map[string]string{
			"method":      string(v.Method),
			"temperature": formatFloat(ev.Temperature),
			"pressure":    formatFloat(ev.Pressure),
			"event_time":  ev.Time().Format(time.RFC3339),
		},
	}
	return d.dispatch(alert)
}

// DispatchBreach turns a direct threshold breach into an alert.
func (d *Dispatcher) DispatchBreach(ev model.TelemetryEvent, b detector.Breach) bool {
	alert := model.Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  ev.DeviceID,
		AlertType: b.Type,
		Severity:  b.Severity,
		Score:     1,
		Reasons:   []string{"threshold_breach"},
		Payload: map[string]string{
			"metric":     b.Metric,
			"value":      formatFloat(b.Value),
			"limit":      formatFloat(b.Limit),
			"event_time": ev.Time().Format(time.RFC3339),
		},
	}
	return d.dispatch(alert)
}

func (d *Dispatcher) dispatch(alert model.Alert) bool {
	key := alert.DedupKey()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	if _, suppressed := d.dedup.Get(key); suppressed {
		d.mu.Unlock()
		if d.counters != nil {
			d.counters.IncAlertsSuppressed()
		}
		return false
	}
	d.dedup.Add(key, struct{}{})
	d.wg.Add(len(d.sinks))
	d.mu.Unlock()

	if d.store != nil {
		d.store.Add(alert)
	}
	if d.counters != nil {
		d.counters.IncAlertsGenerated()
	}
	if d.persist != nil {
		if err := d.persist.SaveAlert(context.Background(), alert); err != nil && d.logger != nil {
			d.logger.Warn("alert persistence failed", "alert_id", alert.ID, "err", err)
		}
	}

	for _, s := range d.sinks {
		go d.deliver(s, alert)
	}
	return true
}

func (d *Dispatcher) deliver(s sink.Sink, alert model.Alert) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout())
	defer cancel()
	if err := s.Send(ctx, alert); err != nil {
		if d.counters != nil {
			d.counters.IncProcessingErrors()
		}
		if d.logger != nil {
			d.logger.Warn("sink delivery failed",
				"sink", s.Name(),
				"alert_id", alert.ID,
				"device_id", alert.DeviceID,
				"err", err,
			)
		}
	}
}

func (d *Dispatcher) sinkTimeout() time.Duration {
	if d.cfg.SinkTimeout > 0 {
		return d.cfg.SinkTimeout
	}
	return 5 * time.Second
}

// Close stops accepting alerts and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func alertTypeFor(v model.AnomalyVerdict) string {
	if v.Method == model.MethodTrend {
		for _, r := range v.Reasons {
			switch r {
			case "temperature_trend_increasing", "temperature_trend_decreasing":
				return "TEMPERATURE_TREND"
			case "pressure_trend_increasing", "pressure_trend_decreasing":
				return "PRESSURE_TREND"
			}
		}
		return "TREND"
	}
	return "ANOMALY_DETECTED"
}

func severityFor(v model.AnomalyVerdict) model.Severity {
	if v.Method == model.MethodTrend {
		return model.SeverityMedium
	}
	switch {
	case v.Score >= 0.9:
		return model.SeverityCritical
	case v.Score >= 0.75:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
