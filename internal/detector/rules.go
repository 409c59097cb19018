package detector

import (
	"wellwatch/internal/config"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Breach is a direct absolute-threshold violation, dispatched as its own
// alert independently of the ensemble verdict.
type Breach struct {
	Type     string
	Severity model.Severity
	Metric   string
	Value    float64
	Limit    float64
}

// Breaches checks an event against the hard operating limits. Severities
// follow the original monitoring rules: an upper-bound breach is critical,
// a lower-bound breach is high.
func Breaches(ev model.TelemetryEvent, rules config.RulesConfig) []Breach {
	var out []Breach
	if rules.TemperatureMax != 0 && ev.Temperature > rules.TemperatureMax {
		out = append(out, Breach{
			Type: "TEMPERATURE_HIGH", Severity: model.SeverityCritical,
			Metric: "temperature", Value: ev.Temperature, Limit: rules.TemperatureMax,
		})
	} else if rules.TemperatureMin != 0 && ev.Temperature < rules.TemperatureMin {
		out = append(out, Breach{
			Type: "TEMPERATURE_LOW", Severity: model.SeverityHigh,
			Metric: "temperature", Value: ev.Temperature, Limit: rules.TemperatureMin,
		})
	}
	if rules.PressureMax != 0 && ev.Pressure > rules.PressureMax {
		out = append(out, Breach{
			Type: "PRESSURE_HIGH", Severity: model.SeverityCritical,
			Metric: "pressure", Value: ev.Pressure, Limit: rules.PressureMax,
		})
	} else if rules.PressureMin != 0 && ev.Pressure < rules.PressureMin {
		out = append(out, Breach{
			Type: "PRESSURE_LOW", Severity: model.SeverityHigh,
			Metric: "pressure", Value: ev.Pressure, Limit: rules.PressureMin,
		})
	}
	return out
}

// Rules is the rule-based ensemble signal: hard limit breaches, normal-range
// violations, and a cross-parameter rule that fires when both metrics sit
// above their secondary thresholds at once.
type Rules struct {
	cfg config.DetectionConfig
}

func NewRules(cfg config.DetectionConfig) *Rules {
	return &Rules{cfg: cfg}
}

func (d *Rules) Name() string { return "rules" }

func (d *Rules) Evaluate(ev model.TelemetryEvent, _ *history.History) (model.AnomalyVerdict, error) {
	rules := d.cfg.Rules
	verdict := model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodRuleBased,
	}

	score := 0.0
	for _, b := range Breaches(ev, rules) {
		switch b.Type {
		case "TEMPERATURE_HIGH":
			verdict.Reasons = append(verdict.Reasons, "temperature_above_max")
		case "TEMPERATURE_LOW":
			verdict.Reasons = append(verdict.Reasons, "temperature_below_min")
		case "PRESSURE_HIGH":
			verdict.Reasons = append(verdict.Reasons, "pressure_above_max")
		case "PRESSURE_LOW":
			verdict.Reasons = append(verdict.Reasons, "pressure_below_min")
		}
		score = 1.0
	}
	if !rules.NormalTemperature.Contains(ev.Temperature) {
		verdict.Reasons = append(verdict.Reasons, "temperature_outside_normal_range")
		if score < 0.6 {
			score = 0.6
		}
	}
	if !rules.NormalPressure.Contains(ev.Pressure) {
		verdict.Reasons = append(verdict.Reasons, "pressure_outside_normal_range")
		if score < 0.6 {
			score = 0.6
		}
	}
	if rules.TemperatureSecondary != 0 && rules.PressureSecondary != 0 &&
		ev.Temperature > rules.TemperatureSecondary && ev.Pressure > rules.PressureSecondary {
		verdict.Reasons = append(verdict.Reasons, "combined_threshold_breach")
		if score < 0.8 {
			score = 0.8
		}
	}
	verdict.Score = score
	verdict.IsAnomaly = len(verdict.Reasons) > 0
	return verdict, nil
}
