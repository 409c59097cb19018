package health

import (
	"math"
	"testing"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

func testScorer() *Scorer {
	return NewScorer(config.DefaultConfig().Health)
}

func fillHistory(n int, temp func(i int) float64, pressure func(i int) float64) *history.History {
	h := history.New(100)
	for i := 0; i < n; i++ {
		h.Append(model.TelemetryEvent{
			DeviceID:    "well-01",
			Timestamp:   float64(i),
			Temperature: temp(i),
			Pressure:    pressure(i),
		})
	}
	return h
}

func TestStableDeviceHealthy(t *testing.T) {
	s := testScorer()
	h := fillHistory(20,
		func(int) float64 { return 80 },
		func(int) float64 { return 200 },
	)
	got := s.Score("well-01", h, 0)
	if got.Status != model.StatusHealthy {
		t.Fatalf("expected HEALTHY, got %+v", got)
	}
	if math.Abs(got.Score-1.0) > 1e-9 {
		t.Fatalf("expected perfect score for zero variance, got %v", got.Score)
	}
	if got.LastSeen != 19 {
		t.Fatalf("expected last seen 19, got %v", got.LastSeen)
	}
}

func TestAlertPenaltyIsCapped(t *testing.T) {
	s := testScorer()
	h := fillHistory(20,
		func(int) float64 { return 80 },
		func(int) float64 { return 200 },
	)
	got := s.Score("well-01", h, 25)
	// Stability is perfect, so the capped penalty leaves exactly 0.5.
	if math.Abs(got.Score-0.5) > 1e-9 {
		t.Fatalf("expected capped penalty score 0.5, got %v", got.Score)
	}
	if got.Status != model.StatusDegraded {
		t.Fatalf("expected DEGRADED, got %v", got.Status)
	}
	if got.RecentAlerts != 25 {
		t.Fatalf("expected recent alert count preserved, got %d", got.RecentAlerts)
	}
}

func TestNoisyDeviceCritical(t *testing.T) {
	s := testScorer()
	h := fillHistory(20,
		func(i int) float64 {
			if i%2 == 0 {
				return 65
			}
			return 95
		},
		func(i int) float64 {
			if i%2 == 0 {
				return 140
			}
			return 260
		},
	)
	got := s.Score("well-01", h, 4)
	if got.Status != model.StatusCritical {
		t.Fatalf("expected CRITICAL for high variance, got %+v", got)
	}
	if got.TemperatureStability != 0 || got.PressureStability != 0 {
		t.Fatalf("expected zero stabilities, got %+v", got)
	}
}

func TestNoDataStatus(t *testing.T) {
	s := testScorer()
	got := s.Score("well-09", history.New(10), 0)
	if got.Status != model.StatusNoData {
		t.Fatalf("expected NO_DATA for empty history, got %+v", got)
	}
	got = s.Score("well-09", nil, 0)
	if got.Status != model.StatusNoData {
		t.Fatalf("expected NO_DATA for nil history, got %+v", got)
	}
}

func TestDegradedBand(t *testing.T) {
	s := testScorer()
	// Temperature std of 8 gives stability 0.2; flat pressure gives 1.0.
	// The 0.6 average lands between the degraded and healthy thresholds.
	h := fillHistory(20,
		func(i int) float64 {
			if i%2 == 0 {
				return 72
			}
			return 88
		},
		func(int) float64 { return 200 },
	)
	got := s.Score("well-01", h, 0)
	if got.Status != model.StatusDegraded {
		t.Fatalf("expected DEGRADED, got %+v", got)
	}
}
