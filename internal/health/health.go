package health

import (
	"math"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Scorer derives a device health status from telemetry stability and recent
// alert pressure.
type Scorer struct {
	cfg config.HealthConfig
}

func NewScorer(cfg config.HealthConfig) *Scorer {
	if cfg.TemperatureBadStd <= 0 {
		cfg.TemperatureBadStd = 10
	}
	if cfg.PressureBadStd <= 0 {
		cfg.PressureBadStd = 50
	}
	if cfg.Thresholds.Healthy <= 0 {
		cfg.Thresholds.Healthy = 0.7
	}
	if cfg.Thresholds.Degraded <= 0 {
		cfg.Thresholds.Degraded = 0.4
	}
	if cfg.RecentAlertPenalty <= 0 {
		cfg.RecentAlertPenalty = 0.1
	}
	if cfg.MaxRecentAlertWeight <= 0 {
		cfg.MaxRecentAlertWeight = 0.5
	}
	return &Scorer{cfg: cfg}
}

// Score computes health for one device. recentAlerts is the count of alerts
// for the device inside the configured alert window.
//
// Per-metric stability is 1 − std/badStd clamped to [0,1], so zero variance
// scores 1 and variance at or past the "bad" level scores 0. The final score
// is the stability average minus min(maxWeight, alerts × penalty), clamped
// to [0,1].
func (s *Scorer) Score(deviceID string, hist *history.History, recentAlerts int) model.DeviceHealth {
	if hist == nil || hist.Len() == 0 {
		return model.DeviceHealth{DeviceID: deviceID, Status: model.StatusNoData}
	}
	events := hist.Recent(0)
	last := events[len(events)-1]

	tempStd, pressureStd := stddevs(events)
	tempStability := clamp01(1 - tempStd/s.cfg.TemperatureBadStd)
	pressureStability := clamp01(1 - pressureStd/s.cfg.PressureBadStd)

	penalty := float64(recentAlerts) * s.cfg.RecentAlertPenalty
	if penalty > s.cfg.MaxRecentAlertWeight {
		penalty = s.cfg.MaxRecentAlertWeight
	}
	score := clamp01((tempStability+pressureStability)/2 - penalty)

	status := model.StatusCritical
	if score > s.cfg.Thresholds.Healthy {
		status = model.StatusHealthy
	} else if score > s.cfg.Thresholds.Degraded {
		status = model.StatusDegraded
	}
	return model.DeviceHealth{
		DeviceID:             deviceID,
		Status:               status,
		Score:                score,
		TemperatureStability: tempStability,
		PressureStability:    pressureStability,
		RecentAlerts:         recentAlerts,
		LastSeen:             last.Timestamp,
	}
}

func stddevs(events []model.TelemetryEvent) (tempStd, pressureStd float64) {
	n := float64(len(events))
	if n < 2 {
		return 0, 0
	}
	var tempMean, pressureMean float64
	for _, ev := range events {
		tempMean += ev.Temperature
		pressureMean += ev.Pressure
	}
	tempMean /= n
	pressureMean /= n
	var tv, pv float64
	for _, ev := range events {
		dt := ev.Temperature - tempMean
		dp := ev.Pressure - pressureMean
		tv += dt * dt
		pv += dp * dp
	}
	return math.Sqrt(tv / n), math.Sqrt(pv / n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
