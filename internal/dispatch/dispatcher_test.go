package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"wellwatch/internal/alerts"
	"wellwatch/internal/config"
	"wellwatch/internal/detector"
	"wellwatch/internal/model"
	"wellwatch/internal/sink"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	sent []model.Alert
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, alert model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, alert)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeCounters struct {
	generated  atomic.Uint64
	suppressed atomic.Uint64
	errors     atomic.Uint64
}

func (c *fakeCounters) IncAlertsGenerated()  { c.generated.Add(1) }
func (c *fakeCounters) IncAlertsSuppressed() { c.suppressed.Add(1) }
func (c *fakeCounters) IncProcessingErrors() { c.errors.Add(1) }

func testDispatchConfig() config.DispatchConfig {
	cfg := config.DefaultConfig().Dispatch
	cfg.DedupWindowSeconds = 60
	return cfg
}

func breach() detector.Breach {
	return detector.Breach{
		Type:     "TEMPERATURE_HIGH",
		Severity: model.SeverityCritical,
		Metric:   "temperature",
		Value:    130,
		Limit:    120,
	}
}

func TestBreachDedupWithinWindow(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	counters := &fakeCounters{}
	store := alerts.NewStore(100)
	d := New(testDispatchConfig(), []sink.Sink{rec}, store, counters, nil, nil)

	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 130, Pressure: 200}
	if !d.DispatchBreach(ev, breach()) {
		t.Fatalf("expected first breach to dispatch")
	}
	ev2 := ev
	ev2.Timestamp = 110
	if d.DispatchBreach(ev2, breach()) {
		t.Fatalf("expected second breach inside window to be suppressed")
	}
	d.Close()

	if rec.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", rec.count())
	}
	if counters.generated.Load() != 1 || counters.suppressed.Load() != 1 {
		t.Fatalf("expected 1 generated / 1 suppressed, got %d/%d",
			counters.generated.Load(), counters.suppressed.Load())
	}
	if len(store.List(0)) != 1 {
		t.Fatalf("expected one stored alert, got %d", len(store.List(0)))
	}
}

func TestDistinctAlertTypesNotDeduped(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	d := New(testDispatchConfig(), []sink.Sink{rec}, alerts.NewStore(100), nil, nil, nil)

	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 130, Pressure: 200}
	if !d.DispatchBreach(ev, breach()) {
		t.Fatalf("expected breach to dispatch")
	}
	verdict := model.AnomalyVerdict{
		DeviceID:  "well-01",
		IsAnomaly: true,
		Score:     0.95,
		Method:    model.MethodEnsemble,
		Reasons:   []string{"temperature_z_exceeds_threshold"},
	}
	if !d.DispatchVerdict(ev, verdict) {
		t.Fatalf("expected verdict with different alert type to dispatch")
	}
	d.Close()
	if rec.count() != 2 {
		t.Fatalf("expected two deliveries, got %d", rec.count())
	}
}

func TestDistinctDevicesNotDeduped(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	d := New(testDispatchConfig(), []sink.Sink{rec}, alerts.NewStore(100), nil, nil, nil)

	ev1 := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 130, Pressure: 200}
	ev2 := model.TelemetryEvent{DeviceID: "well-02", Timestamp: 100, Temperature: 130, Pressure: 200}
	if !d.DispatchBreach(ev1, breach()) || !d.DispatchBreach(ev2, breach()) {
		t.Fatalf("expected both devices to dispatch")
	}
	d.Close()
	if rec.count() != 2 {
		t.Fatalf("expected two deliveries, got %d", rec.count())
	}
}

func TestFailingSinkIsolated(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("gateway down")}
	good := &recordingSink{name: "good"}
	counters := &fakeCounters{}
	d := New(testDispatchConfig(), []sink.Sink{bad, good}, alerts.NewStore(100), counters, nil, nil)

	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 130, Pressure: 200}
	if !d.DispatchBreach(ev, breach()) {
		t.Fatalf("expected dispatch despite failing sink")
	}
	d.Close()

	if good.count() != 1 {
		t.Fatalf("expected healthy sink to receive the alert, got %d", good.count())
	}
	if counters.errors.Load() != 1 {
		t.Fatalf("expected one delivery error, got %d", counters.errors.Load())
	}
}

func TestNegativeVerdictIgnored(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	d := New(testDispatchConfig(), []sink.Sink{rec}, alerts.NewStore(100), nil, nil, nil)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 80, Pressure: 200}
	if d.DispatchVerdict(ev, model.AnomalyVerdict{DeviceID: "well-01", IsAnomaly: false}) {
		t.Fatalf("expected negative verdict to be ignored")
	}
	d.Close()
	if rec.count() != 0 {
		t.Fatalf("expected no deliveries, got %d", rec.count())
	}
}

func TestTrendVerdictAlertType(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	d := New(testDispatchConfig(), []sink.Sink{rec}, alerts.NewStore(100), nil, nil, nil)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 95, Pressure: 200}
	verdict := model.AnomalyVerdict{
		DeviceID:  "well-01",
		IsAnomaly: true,
		Score:     0.8,
		Method:    model.MethodTrend,
		Reasons:   []string{"temperature_trend_increasing"},
	}
	if !d.DispatchVerdict(ev, verdict) {
		t.Fatalf("expected trend verdict to dispatch")
	}
	d.Close()
	if rec.count() != 1 {
		t.Fatalf("expected one delivery, got %d", rec.count())
	}
	a := rec.sent[0]
	if a.AlertType != "TEMPERATURE_TREND" || a.Severity != model.SeverityMedium {
		t.Fatalf("unexpected trend alert: %+v", a)
	}
}

func TestCloseRejectsNewAlerts(t *testing.T) {
	rec := &recordingSink{name: "rec"}
	d := New(testDispatchConfig(), []sink.Sink{rec}, alerts.NewStore(100), nil, nil, nil)
	d.Close()
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 100, Temperature: 130, Pressure: 200}
	if d.DispatchBreach(ev, breach()) {
		t.Fatalf("expected dispatch after close to be rejected")
	}
}

func TestSeverityMapping(t *testing.T) {
	cases := []struct {
		score float64
		want  model.Severity
	}{
		{0.95, model.SeverityCritical},
		{0.8, model.SeverityHigh},
		{0.55, model.SeverityMedium},
	}
	for _, tc := range cases {
		got := severityFor(model.AnomalyVerdict{Method: model.MethodEnsemble, Score: tc.score})
		if got != tc.want {
			t.Fatalf("score %v: expected %v, got %v", tc.score, tc.want, got)
		}
	}
}
