package detector

import (
	"math"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Statistical flags readings whose z-score against the rolling window exceeds
// the configured threshold on any metric.
//
// The verdict score maps the worst z-score onto [0,1] as z/(2*threshold), so
// a reading exactly at the threshold scores 0.5 and 2x the threshold
// saturates at 1. This keeps the statistical signal calibrated for the
// ensemble vote: above 0.5 means "fired".
type Statistical struct {
	cfg config.DetectionConfig
}

func NewStatistical(cfg config.DetectionConfig) *Statistical {
	return &Statistical{cfg: cfg}
}

func (d *Statistical) Name() string { return "statistical" }

func (d *Statistical) Evaluate(ev model.TelemetryEvent, hist *history.History) (model.AnomalyVerdict, error) {
	events := hist.Recent(d.cfg.WindowSize)
	if len(events) < d.cfg.MinPoints {
		return insufficientData(ev), nil
	}
	st := computeStats(events)
	tempZ := math.Abs(ev.Temperature-st.tempMean) / (st.tempStd + d.cfg.Epsilon)
	pressureZ := math.Abs(ev.Pressure-st.pressureMean) / (st.pressureStd + d.cfg.Epsilon)

	verdict := model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodStatistical,
	}
	if tempZ > d.cfg.ZScoreThreshold {
		verdict.Reasons = append(verdict.Reasons, "temperature_z_exceeds_threshold")
	}
	if pressureZ > d.cfg.ZScoreThreshold {
		verdict.Reasons = append(verdict.Reasons, "pressure_z_exceeds_threshold")
	}
	maxZ := tempZ
	if pressureZ > maxZ {
		maxZ = pressureZ
	}
	verdict.Score = clamp01(maxZ / (2 * d.cfg.ZScoreThreshold))
	verdict.IsAnomaly = len(verdict.Reasons) > 0
	return verdict, nil
}
