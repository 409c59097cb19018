package detector

import (
	"errors"
	"testing"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
	"wellwatch/internal/trend"
)

func testDetection() config.DetectionConfig {
	return config.DefaultConfig().Detection
}

// stableHistory fills a history with n readings alternating around 80 degrees
// and a flat 200 PSI.
func stableHistory(n int) *history.History {
	h := history.New(100)
	for i := 0; i < n; i++ {
		temp := 78.0
		if i%2 == 1 {
			temp = 82.0
		}
		h.Append(model.TelemetryEvent{
			DeviceID:    "well-01",
			Timestamp:   float64(i),
			Temperature: temp,
			Pressure:    200,
		})
	}
	return h
}

func TestStatisticalInsufficientData(t *testing.T) {
	d := NewStatistical(testDetection())
	h := stableHistory(5)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 5, Temperature: 95, Pressure: 200}
	v, err := d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Method != model.MethodInsufficientData || v.IsAnomaly {
		t.Fatalf("expected insufficient_data verdict, got %+v", v)
	}
}

func TestStatisticalFlagsSpike(t *testing.T) {
	d := NewStatistical(testDetection())
	h := stableHistory(20)
	spike := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 95, Pressure: 200}
	h.Append(spike)
	v, err := d.Evaluate(spike, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsAnomaly {
		t.Fatalf("expected spike to be flagged, got %+v", v)
	}
	if !hasReason(v.Reasons, "temperature_z_exceeds_threshold") {
		t.Fatalf("expected temperature z-score reason, got %v", v.Reasons)
	}
	if v.Score < 0.5 {
		t.Fatalf("expected score at least 0.5 when fired, got %v", v.Score)
	}
}

func TestStatisticalStableReadingPasses(t *testing.T) {
	d := NewStatistical(testDetection())
	h := stableHistory(20)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 81, Pressure: 200}
	h.Append(ev)
	v, err := d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IsAnomaly {
		t.Fatalf("stable reading flagged: %+v", v)
	}
}

func TestRulesHardBreach(t *testing.T) {
	d := NewRules(testDetection())
	ev := model.TelemetryEvent{DeviceID: "well-01", Temperature: 130, Pressure: 200}
	v, err := d.Evaluate(ev, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsAnomaly || v.Score != 1.0 {
		t.Fatalf("expected hard breach with score 1, got %+v", v)
	}
	if !hasReason(v.Reasons, "temperature_above_max") {
		t.Fatalf("expected temperature_above_max, got %v", v.Reasons)
	}
}

func TestRulesCombinedBreach(t *testing.T) {
	d := NewRules(testDetection())
	// Both metrics above their secondary thresholds but under the hard limits.
	ev := model.TelemetryEvent{DeviceID: "well-01", Temperature: 115, Pressure: 285}
	v, err := d.Evaluate(ev, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasReason(v.Reasons, "combined_threshold_breach") {
		t.Fatalf("expected combined_threshold_breach, got %v", v.Reasons)
	}
	if v.Score != 0.8 {
		t.Fatalf("expected score 0.8, got %v", v.Score)
	}
}

func TestBreachesSeverities(t *testing.T) {
	rules := testDetection().Rules
	high := Breaches(model.TelemetryEvent{Temperature: 130, Pressure: 200}, rules)
	if len(high) != 1 || high[0].Type != "TEMPERATURE_HIGH" || high[0].Severity != model.SeverityCritical {
		t.Fatalf("expected critical TEMPERATURE_HIGH, got %+v", high)
	}
	low := Breaches(model.TelemetryEvent{Temperature: 30, Pressure: 90}, rules)
	if len(low) != 2 {
		t.Fatalf("expected two low breaches, got %+v", low)
	}
	for _, b := range low {
		if b.Severity != model.SeverityHigh {
			t.Fatalf("expected high severity for lower-bound breach, got %+v", b)
		}
	}
}

func TestExternalModelThreshold(t *testing.T) {
	cfg := testDetection()
	d := NewExternalModel(cfg, ScorerFunc(func([]float64) (float64, error) { return 0.9, nil }))
	h := stableHistory(20)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 80, Pressure: 200}
	v, err := d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsAnomaly || v.Method != model.MethodExternalModel {
		t.Fatalf("expected model anomaly, got %+v", v)
	}

	d = NewExternalModel(cfg, ScorerFunc(func([]float64) (float64, error) { return 0.2, nil }))
	v, err = d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IsAnomaly {
		t.Fatalf("expected no anomaly at probability 0.2, got %+v", v)
	}
}

func TestExternalModelErrorSurfaces(t *testing.T) {
	boom := errors.New("boom")
	d := NewExternalModel(testDetection(), ScorerFunc(func([]float64) (float64, error) { return 0, boom }))
	h := stableHistory(20)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 80, Pressure: 200}
	if _, err := d.Evaluate(ev, h); !errors.Is(err, boom) {
		t.Fatalf("expected scoring error, got %v", err)
	}
}

func TestEnsembleCombineTieIsAnomaly(t *testing.T) {
	e := NewEnsemble(testDetection(), nil, nil)
	ev := model.TelemetryEvent{DeviceID: "well-01"}
	v := e.Combine(ev, []model.AnomalyVerdict{
		{DeviceID: "well-01", Method: model.MethodStatistical, Score: 0.5},
		{DeviceID: "well-01", Method: model.MethodRuleBased, Score: 0.5},
	})
	if v.Score != 0.5 || !v.IsAnomaly {
		t.Fatalf("expected tie at vote threshold to count as anomaly, got %+v", v)
	}
}

func TestEnsembleCombineSkipsInsufficient(t *testing.T) {
	e := NewEnsemble(testDetection(), nil, nil)
	ev := model.TelemetryEvent{DeviceID: "well-01"}
	v := e.Combine(ev, []model.AnomalyVerdict{
		{DeviceID: "well-01", Method: model.MethodInsufficientData},
		{DeviceID: "well-01", Method: model.MethodRuleBased, Score: 1.0, Reasons: []string{"temperature_above_max"}},
	})
	if v.Method != model.MethodEnsemble || v.Score != 1.0 || !v.IsAnomaly {
		t.Fatalf("expected rules-only vote of 1.0, got %+v", v)
	}
}

func TestEnsembleCombineNoVotes(t *testing.T) {
	e := NewEnsemble(testDetection(), nil, nil)
	ev := model.TelemetryEvent{DeviceID: "well-01"}
	v := e.Combine(ev, []model.AnomalyVerdict{
		{DeviceID: "well-01", Method: model.MethodInsufficientData},
	})
	if v.Method != model.MethodInsufficientData || v.IsAnomaly {
		t.Fatalf("expected insufficient_data with no votes, got %+v", v)
	}
}

func TestEnsembleEvaluateCriticalReading(t *testing.T) {
	e := NewEnsemble(testDetection(), nil, nil)
	h := stableHistory(20)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 130, Pressure: 200}
	h.Append(ev)
	v, err := e.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsAnomaly || v.Method != model.MethodEnsemble {
		t.Fatalf("expected ensemble anomaly on critical reading, got %+v", v)
	}
}

func TestEnsembleDeterministic(t *testing.T) {
	e := NewEnsemble(testDetection(), nil, nil)
	h := stableHistory(20)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 20, Temperature: 95, Pressure: 200}
	h.Append(ev)
	first, err := e.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Score != second.Score || first.IsAnomaly != second.IsAnomaly {
		t.Fatalf("verdicts differ for identical input: %+v vs %+v", first, second)
	}
}

func TestTrendDetectorRamp(t *testing.T) {
	cfg := config.DefaultConfig().Trend
	d := NewTrend(cfg, trend.NewAnalyzer(cfg))
	h := history.New(100)
	for i := 0; i < 25; i++ {
		h.Append(model.TelemetryEvent{
			DeviceID:    "well-01",
			Timestamp:   float64(i),
			Temperature: 70 + float64(i), // 1 degree per reading, limit is 0.5
			Pressure:    200,
		})
	}
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 25, Temperature: 95, Pressure: 200}
	v, err := d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsAnomaly || !hasReason(v.Reasons, "temperature_trend_increasing") {
		t.Fatalf("expected increasing temperature trend, got %+v", v)
	}
}

func TestTrendDetectorNeedsEnoughPoints(t *testing.T) {
	cfg := config.DefaultConfig().Trend
	d := NewTrend(cfg, trend.NewAnalyzer(cfg))
	h := stableHistory(10)
	ev := model.TelemetryEvent{DeviceID: "well-01", Timestamp: 10, Temperature: 80, Pressure: 200}
	v, err := d.Evaluate(ev, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Method != model.MethodInsufficientData {
		t.Fatalf("expected insufficient_data below minimum points, got %+v", v)
	}
}

func TestFeaturesVector(t *testing.T) {
	h := stableHistory(12)
	events := h.Recent(0)
	ev := events[len(events)-1]
	f := Features(ev, events, 1e-8)
	if len(f) != 6 {
		t.Fatalf("expected 6 features, got %d", len(f))
	}
	if f[0] != ev.Temperature || f[1] != ev.Pressure {
		t.Fatalf("expected raw readings first, got %v", f)
	}
}

func hasReason(reasons []string, target string) bool {
	for _, r := range reasons {
		if r == target {
			return true
		}
	}
	return false
}
