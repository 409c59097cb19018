package analytics

import (
	"testing"
	"time"

	"wellwatch/internal/config"
	"wellwatch/internal/model"
	"wellwatch/internal/processor"
	"wellwatch/internal/trend"
)

func newTestEngine(t *testing.T) (*Engine, *processor.Processor) {
	t.Helper()
	cfg := config.DefaultConfig()
	proc := processor.New(cfg, nil, processor.Options{
		TrendDetector: nil,
	})
	return NewEngine(cfg.Trend, proc), proc
}

func feed(t *testing.T, proc *processor.Processor, device string, n int, temp func(i int) float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := model.TelemetryEvent{
			DeviceID:    device,
			Timestamp:   float64(i),
			Temperature: temp(i),
			Pressure:    200,
		}
		if _, err := proc.Process(ev); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
}

func TestDeviceReport(t *testing.T) {
	engine, proc := newTestEngine(t)
	feed(t, proc, "well-01", 30, func(i int) float64 { return 70 + float64(i) })

	report, ok := engine.Device("well-01")
	if !ok {
		t.Fatalf("expected report for known device")
	}
	if report.DataPoints != 30 {
		t.Fatalf("expected 30 data points, got %d", report.DataPoints)
	}
	if report.Temperature.Min != 70 || report.Temperature.Max != 99 {
		t.Fatalf("unexpected temperature summary: %+v", report.Temperature)
	}
	if report.Temperature.Current != 99 {
		t.Fatalf("expected current temperature 99, got %v", report.Temperature.Current)
	}
	if report.Pressure.Std != 0 {
		t.Fatalf("expected zero pressure variance, got %v", report.Pressure.Std)
	}
	if report.TemperatureTrend.Linear.Direction != trend.DirectionIncreasing {
		t.Fatalf("expected increasing temperature trend, got %+v", report.TemperatureTrend.Linear)
	}
	if report.FirstSeen != 0 || report.LastSeen != 29 {
		t.Fatalf("unexpected seen range: %+v", report)
	}
}

func TestDeviceUnknown(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, ok := engine.Device("missing"); ok {
		t.Fatalf("expected no report for unknown device")
	}
}

func TestCachedReport(t *testing.T) {
	engine, proc := newTestEngine(t)
	feed(t, proc, "well-01", 5, func(int) float64 { return 80 })
	if _, ok := engine.Cached("well-01"); ok {
		t.Fatalf("expected empty cache before first computation")
	}
	if _, ok := engine.Device("well-01"); !ok {
		t.Fatalf("expected report")
	}
	cached, ok := engine.Cached("well-01")
	if !ok || cached.DataPoints != 5 {
		t.Fatalf("expected cached report with 5 points, got %+v", cached)
	}
	engine.Clear()
	if _, ok := engine.Cached("well-01"); ok {
		t.Fatalf("expected cache cleared")
	}
}

func TestOverviewCountsHealth(t *testing.T) {
	engine, proc := newTestEngine(t)
	feed(t, proc, "well-01", 20, func(int) float64 { return 80 })
	for i := 0; i < 20; i++ {
		ev := model.TelemetryEvent{DeviceID: "well-02", Timestamp: float64(i), Temperature: 50, Pressure: 120}
		if i%2 == 1 {
			ev.Temperature, ev.Pressure = 110, 280
		}
		if _, err := proc.Process(ev); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	ov := engine.Overview()
	if ov.Devices != 2 {
		t.Fatalf("expected 2 devices, got %d", ov.Devices)
	}
	if ov.HealthyDevices != 1 {
		t.Fatalf("expected 1 healthy device, got %+v", ov)
	}
	if ov.CriticalDevices != 1 {
		t.Fatalf("expected 1 critical device, got %+v", ov)
	}
	if ov.Stats.EventsProcessed != 40 {
		t.Fatalf("expected 40 processed events, got %d", ov.Stats.EventsProcessed)
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	c.Update(DeviceAnalytics{DeviceID: "a", UpdatedAt: time.Now()})
	c.Update(DeviceAnalytics{DeviceID: "b", UpdatedAt: time.Now()})
	c.Update(DeviceAnalytics{DeviceID: "c", UpdatedAt: time.Now()})
	if len(c.GetAll()) != 2 {
		t.Fatalf("expected cache bounded at 2, got %d", len(c.GetAll()))
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
}
