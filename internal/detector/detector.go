package detector

import (
	"math"

	"wellwatch/internal/history"
	"wellwatch/internal/model"
)

// Detector evaluates one event against its device's history. Implementations
// must be deterministic for identical history and configuration, and must not
// block on I/O; the external-model detector is the only one allowed to call
// out of process.
type Detector interface {
	Name() string
	Evaluate(ev model.TelemetryEvent, hist *history.History) (model.AnomalyVerdict, error)
}

// rollingStats holds per-metric mean and standard deviation over a window.
type rollingStats struct {
	tempMean, tempStd         float64
	pressureMean, pressureStd float64
	n                         int
}

func computeStats(events []model.TelemetryEvent) rollingStats {
	st := rollingStats{n: len(events)}
	if st.n == 0 {
		return st
	}
	for _, ev := range events {
		st.tempMean += ev.Temperature
		st.pressureMean += ev.Pressure
	}
	st.tempMean /= float64(st.n)
	st.pressureMean /= float64(st.n)
	var tv, pv float64
	for _, ev := range events {
		dt := ev.Temperature - st.tempMean
		dp := ev.Pressure - st.pressureMean
		tv += dt * dt
		pv += dp * dp
	}
	st.tempStd = math.Sqrt(tv / float64(st.n))
	st.pressureStd = math.Sqrt(pv / float64(st.n))
	return st
}

// Features builds the feature vector consumed by externally trained models:
// [temperature, pressure, temperature_z, pressure_z, temperature_delta,
// pressure_delta]. The deltas are against the previous reading, zero when
// there is none.
func Features(ev model.TelemetryEvent, events []model.TelemetryEvent, epsilon float64) []float64 {
	st := computeStats(events)
	tempZ := math.Abs(ev.Temperature-st.tempMean) / (st.tempStd + epsilon)
	pressureZ := math.Abs(ev.Pressure-st.pressureMean) / (st.pressureStd + epsilon)
	var tempDelta, pressureDelta float64
	if n := len(events); n >= 2 {
		prev := events[n-2]
		tempDelta = ev.Temperature - prev.Temperature
		pressureDelta = ev.Pressure - prev.Pressure
	}
	return []float64{ev.Temperature, ev.Pressure, tempZ, pressureZ, tempDelta, pressureDelta}
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

func insufficientData(ev model.TelemetryEvent) model.AnomalyVerdict {
	return model.AnomalyVerdict{
		DeviceID: ev.DeviceID,
		Method:   model.MethodInsufficientData,
	}
}
