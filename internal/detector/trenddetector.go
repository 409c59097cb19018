package detector

import (
	"math"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
	"wellwatch/internal/trend"
)

// Trend flags sustained per-reading drift: a least-squares slope steeper
// than the configured per-metric limit (degrees or PSI per reading). The fit
// runs over reading index rather than wall time so the limits keep their
// per-reading meaning regardless of emit cadence.
type Trend struct {
	cfg      config.TrendConfig
	window   int
	analyzer *trend.Analyzer
}

func NewTrend(cfg config.TrendConfig, analyzer *trend.Analyzer) *Trend {
	minPoints := cfg.MinPointsForAlerts
	if minPoints < 2 {
		minPoints = 20
	}
	return &Trend{cfg: cfg, window: minPoints + 10, analyzer: analyzer}
}

func (d *Trend) Name() string { return "trend" }

func (d *Trend) Evaluate(ev model.TelemetryEvent, hist *history.History) (model.AnomalyVerdict, error) {
	minPoints := d.cfg.MinPointsForAlerts
	if minPoints < 2 {
		minPoints = 20
	}
	events := hist.Recent(d.window)
	if len(events) < minPoints {
		return insufficientData(ev), nil
	}

	xs := make([]float64, len(events))
	temps := make([]float64, len(events))
	pressures := make([]float64, len(events))
	for i, e := range events {
		xs[i] = float64(i)
		temps[i] = e.Temperature
		pressures[i] = e.Pressure
	}

	verdict := model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodTrend,
	}
	score := 0.0
	if lin := d.analyzer.Linear(xs, temps); lin.OK && d.cfg.TemperatureSlope > 0 &&
		math.Abs(lin.Slope) > d.cfg.TemperatureSlope {
		if lin.Slope > 0 {
			verdict.Reasons = append(verdict.Reasons, "temperature_trend_increasing")
		} else {
			verdict.Reasons = append(verdict.Reasons, "temperature_trend_decreasing")
		}
		score = math.Max(score, clamp01(math.Abs(lin.Slope)/(2*d.cfg.TemperatureSlope)))
	}
	if lin := d.analyzer.Linear(xs, pressures); lin.OK && d.cfg.PressureSlope > 0 &&
		math.Abs(lin.Slope) > d.cfg.PressureSlope {
		if lin.Slope > 0 {
			verdict.Reasons = append(verdict.Reasons, "pressure_trend_increasing")
		} else {
			verdict.Reasons = append(verdict.Reasons, "pressure_trend_decreasing")
		}
		score = math.Max(score, clamp01(math.Abs(lin.Slope)/(2*d.cfg.PressureSlope)))
	}
	verdict.Score = score
	verdict.IsAnomaly = len(verdict.Reasons) > 0
	return verdict, nil
}
