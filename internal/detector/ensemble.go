package detector

import (
	"errors"
	"fmt"
	"log/slog"

	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Ensemble combines the statistical, rule-based, and (when configured)
// external-model signals into one verdict via a weighted vote.
//
// Vote: score = Σ(weight_i × signal_score_i) / Σ(weight_i) over the signals
// that produced a usable result. Each signal is calibrated so that a score
// above 0.5 means it fired, making the weighted mean a soft majority vote.
// The combined verdict is an anomaly when score >= vote_threshold; an exact
// tie at the threshold counts as an anomaly. Alerting on the tie is the
// safer failure mode for field equipment.
type Ensemble struct {
	cfg     config.DetectionConfig
	signals []Detector
	weights map[model.Method]float64
	logger  *slog.Logger
}

// NewEnsemble registers the fixed signal order: statistical, rules, external
// model. The model signal is only present when a scorer is supplied.
func NewEnsemble(cfg config.DetectionConfig, scorer Scorer, logger *slog.Logger) *Ensemble {
	e := &Ensemble{
		cfg:    cfg,
		logger: logger,
		weights: map[model.Method]float64{
			model.MethodStatistical:   cfg.Weights.Statistical,
			model.MethodRuleBased:     cfg.Weights.Rules,
			model.MethodExternalModel: cfg.Weights.Model,
		},
	}
	for m, w := range e.weights {
		if w <= 0 {
			e.weights[m] = 1.0
		}
	}
	e.signals = append(e.signals, NewStatistical(cfg), NewRules(cfg))
	if scorer != nil {
		e.signals = append(e.signals, NewExternalModel(cfg, scorer))
	}
	return e
}

// Signals exposes the registered signal detectors in evaluation order.
func (e *Ensemble) Signals() []Detector { return e.signals }

// Combine folds precomputed signal verdicts into the final ensemble verdict.
// Insufficient-data verdicts carry no vote; degraded inputs degrade the
// output. With no votes at all the result is itself insufficient_data.
func (e *Ensemble) Combine(ev model.TelemetryEvent, signalVerdicts []model.AnomalyVerdict) model.AnomalyVerdict {
	verdict := model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodEnsemble,
	}
	var weightSum, voteSum float64
	for _, sv := range signalVerdicts {
		if sv.Degraded {
			verdict.Degraded = true
		}
		w, ok := e.weights[sv.Method]
		if !ok || sv.Method == model.MethodInsufficientData {
			continue
		}
		voteSum += w * sv.Score
		weightSum += w
		verdict.Reasons = append(verdict.Reasons, sv.Reasons...)
	}
	if weightSum == 0 {
		iv := insufficientData(ev)
		iv.Degraded = verdict.Degraded
		return iv
	}
	verdict.Score = clamp01(voteSum / weightSum)
	verdict.IsAnomaly = verdict.Score >= e.cfg.VoteThreshold
	return verdict
}

// Evaluate runs every signal and combines them. The processor evaluates
// signals itself so each method's verdict surfaces individually; this
// entry point serves standalone use and tests.
func (e *Ensemble) Evaluate(ev model.TelemetryEvent, hist *history.History) (model.AnomalyVerdict, error) {
	if hist.Len() < e.cfg.MinPoints {
		return insufficientData(ev), nil
	}
	var errs []error
	verdicts := make([]model.AnomalyVerdict, 0, len(e.signals))
	for _, sig := range e.signals {
		sv, err := sig.Evaluate(ev, hist)
		if err != nil {
			sv.Degraded = true
			errs = append(errs, fmt.Errorf("%s: %w", sig.Name(), err))
			if e.logger != nil {
				e.logger.Warn("ensemble signal failed", "signal", sig.Name(), "device_id", ev.DeviceID, "err", err)
			}
		}
		verdicts = append(verdicts, sv)
	}
	return e.Combine(ev, verdicts), errors.Join(errs...)
}

func (e *Ensemble) Name() string { return "ensemble" }
