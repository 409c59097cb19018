// Package analytics derives fleet and per-device summaries from the live
// pipeline state. Nothing here mutates the stream; every query reads
// whatever history and alerts exist at call time.
package analytics

import (
	"math"
	"sort"
	"time"

	"wellwatch/internal/config"
	"wellwatch/internal/model"
	"wellwatch/internal/processor"
	"wellwatch/internal/trend"
)

type MetricSummary struct {
	Current float64 `json:"current"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// DeviceAnalytics is the full per-device report: value summaries, trend
// reports for both metrics, and the current health assessment.
type DeviceAnalytics struct {
	DeviceID         string             `json:"device_id"`
	DataPoints       int                `json:"data_points"`
	FirstSeen        float64            `json:"first_seen"`
	LastSeen         float64            `json:"last_seen"`
	Temperature      MetricSummary      `json:"temperature"`
	Pressure         MetricSummary      `json:"pressure"`
	TemperatureTrend trend.Report       `json:"temperature_trend"`
	PressureTrend    trend.Report       `json:"pressure_trend"`
	Health           model.DeviceHealth `json:"health"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type DeviceAlertCount struct {
	DeviceID string `json:"device_id"`
	Count    int    `json:"count"`
}

// Overview is the fleet-level snapshot.
type Overview struct {
	Devices          int                  `json:"devices"`
	HealthyDevices   int                  `json:"healthy_devices"`
	DegradedDevices  int                  `json:"degraded_devices"`
	CriticalDevices  int                  `json:"critical_devices"`
	NoDataDevices    int                  `json:"no_data_devices"`
	Stats            model.ProcessorStats `json:"stats"`
	AlertsLastHour   int                  `json:"alerts_last_hour"`
	TopAlertingUnits []DeviceAlertCount   `json:"top_alerting_devices,omitempty"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

type Engine struct {
	proc  *processor.Processor
	trend *trend.Analyzer
	cache *Cache
}

func NewEngine(cfg config.TrendConfig, proc *processor.Processor) *Engine {
	return &Engine{
		proc:  proc,
		trend: trend.NewAnalyzer(cfg),
		cache: NewCache(0),
	}
}

// Device computes the analytics report for one device and refreshes the
// cached snapshot. ok is false for devices never seen in the stream.
func (e *Engine) Device(deviceID string) (DeviceAnalytics, bool) {
	hist, ok := e.proc.History(deviceID)
	if !ok {
		return DeviceAnalytics{}, false
	}
	events := hist.Recent(0)
	if len(events) == 0 {
		return DeviceAnalytics{}, false
	}

	report := DeviceAnalytics{
		DeviceID:         deviceID,
		DataPoints:       len(events),
		FirstSeen:        events[0].Timestamp,
		LastSeen:         events[len(events)-1].Timestamp,
		Temperature:      summarize(events, func(ev model.TelemetryEvent) float64 { return ev.Temperature }),
		Pressure:         summarize(events, func(ev model.TelemetryEvent) float64 { return ev.Pressure }),
		TemperatureTrend: e.trend.Analyze(events, "temperature"),
		PressureTrend:    e.trend.Analyze(events, "pressure"),
		Health:           e.proc.DeviceHealth(deviceID),
		UpdatedAt:        time.Now().UTC(),
	}
	e.cache.Update(report)
	return report, true
}

// Cached returns the last computed report without recomputing.
func (e *Engine) Cached(deviceID string) (DeviceAnalytics, bool) {
	return e.cache.Get(deviceID)
}

// Overview aggregates health status counts and alert activity across every
// known device.
func (e *Engine) Overview() Overview {
	out := Overview{
		Stats:       e.proc.Stats(),
		GeneratedAt: time.Now().UTC(),
	}
	for _, id := range e.proc.Devices() {
		out.Devices++
		switch e.proc.DeviceHealth(id).Status {
		case model.StatusHealthy:
			out.HealthyDevices++
		case model.StatusDegraded:
			out.DegradedDevices++
		case model.StatusCritical:
			out.CriticalDevices++
		default:
			out.NoDataDevices++
		}
	}

	recent := e.proc.RecentAlerts(3600)
	out.AlertsLastHour = len(recent)
	counts := make(map[string]int)
	for _, a := range recent {
		counts[a.DeviceID]++
	}
	for id, n := range counts {
		out.TopAlertingUnits = append(out.TopAlertingUnits, DeviceAlertCount{DeviceID: id, Count: n})
	}
	sort.Slice(out.TopAlertingUnits, func(i, j int) bool {
		if out.TopAlertingUnits[i].Count != out.TopAlertingUnits[j].Count {
			return out.TopAlertingUnits[i].Count > out.TopAlertingUnits[j].Count
		}
		return out.TopAlertingUnits[i].DeviceID < out.TopAlertingUnits[j].DeviceID
	})
	if len(out.TopAlertingUnits) > 5 {
		out.TopAlertingUnits = out.TopAlertingUnits[:5]
	}
	return out
}

// Clear drops every cached report.
func (e *Engine) Clear() {
	e.cache.Clear()
}

func summarize(events []model.TelemetryEvent, pick func(model.TelemetryEvent) float64) MetricSummary {
	if len(events) == 0 {
		return MetricSummary{}
	}
	s := MetricSummary{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
	var sum float64
	for _, ev := range events {
		v := pick(ev)
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(events))
	var varSum float64
	for _, ev := range events {
		d := pick(ev) - s.Mean
		varSum += d * d
	}
	s.Std = math.Sqrt(varSum / float64(len(events)))
	s.Current = pick(events[len(events)-1])
	return s
}
