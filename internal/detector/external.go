package detector

import (
	"fmt"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Scorer is the consumption contract for an externally trained model: a
// probability in [0,1] that the feature vector describes an anomaly. The
// training side (scikit-learn, LightGBM, whatever produced the artifact) is
// out of scope here; only scoring is.
type Scorer interface {
	Score(features []float64) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(features []float64) (float64, error)

func (f ScorerFunc) Score(features []float64) (float64, error) { return f(features) }

// ExternalModel thresholds the model probability at the configured cutoff
// (default 0.5).
type ExternalModel struct {
	cfg    config.DetectionConfig
	scorer Scorer
}

func NewExternalModel(cfg config.DetectionConfig, scorer Scorer) *ExternalModel {
	return &ExternalModel{cfg: cfg, scorer: scorer}
}

func (d *ExternalModel) Name() string { return "external_model" }

func (d *ExternalModel) Evaluate(ev model.TelemetryEvent, hist *history.History) (model.AnomalyVerdict, error) {
	events := hist.Recent(d.cfg.WindowSize)
	if len(events) < d.cfg.MinPoints {
		return insufficientData(ev), nil
	}
	p, err := d.scorer.Score(Features(ev, events, d.cfg.Epsilon))
	if err != nil {
		return insufficientData(ev), fmt.Errorf("external model score: %w", err)
	}
	verdict := model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodExternalModel,
		Score:    clamp01(p),
	}
	threshold := d.cfg.Model.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if verdict.Score >= threshold {
		verdict.IsAnomaly = true
		verdict.Reasons = append(verdict.Reasons, "model_probability_above_threshold")
	}
	return verdict, nil
}
