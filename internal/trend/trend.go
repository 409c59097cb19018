package trend

import (
	"math"

	"wellwatch/internal/config"
	"wellwatch/internal/model"
)

type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// LinearResult is a least-squares fit over (time, value) pairs. OK is false
// when the series was too short to fit.
type LinearResult struct {
	OK         bool       `json:"ok"`
	Slope      float64    `json:"slope"`
	Intercept  float64    `json:"intercept"`
	R2         float64    `json:"r2"`
	Direction  Direction  `json:"direction"`
	Confidence Confidence `json:"confidence"`
}

type SeasonalResult struct {
	OK       bool  `json:"ok"`
	Seasonal bool  `json:"seasonal"`
	PeakLags []int `json:"peak_lags,omitempty"`
}

type MovingAverageResult struct {
	OK        bool      `json:"ok"`
	Averages  []float64 `json:"averages,omitempty"`
	Direction Direction `json:"direction"`
}

// Report bundles all three analyses for one metric series.
type Report struct {
	Metric   string              `json:"metric"`
	Points   int                 `json:"points"`
	Linear   LinearResult        `json:"linear"`
	Seasonal SeasonalResult      `json:"seasonal"`
	Moving   MovingAverageResult `json:"moving_average"`
}

type Analyzer struct {
	cfg config.TrendConfig
}

func NewAnalyzer(cfg config.TrendConfig) *Analyzer {
	if cfg.SlopeEpsilon <= 0 {
		cfg.SlopeEpsilon = 0.01
	}
	if cfg.MaxLag <= 0 {
		cfg.MaxLag = 48
	}
	if cfg.MovingWindow <= 0 {
		cfg.MovingWindow = 5
	}
	return &Analyzer{cfg: cfg}
}

// Analyze runs linear, seasonal and moving-average analysis over one metric
// of the given events.
func (a *Analyzer) Analyze(events []model.TelemetryEvent, metric string) Report {
	xs := make([]float64, len(events))
	ys := make([]float64, len(events))
	for i, ev := range events {
		xs[i] = ev.Timestamp
		if metric == "pressure" {
			ys[i] = ev.Pressure
		} else {
			ys[i] = ev.Temperature
		}
	}
	return Report{
		Metric:   metric,
		Points:   len(events),
		Linear:   a.Linear(xs, ys),
		Seasonal: a.Seasonal(ys),
		Moving:   a.MovingAverage(ys),
	}
}

// Linear fits y = slope*x + intercept by least squares. Needs at least two
// points; below that it returns a not-OK result rather than guessing.
func (a *Analyzer) Linear(xs, ys []float64) LinearResult {
	n := len(ys)
	if n < 2 || len(xs) != n {
		return LinearResult{Direction: DirectionStable, Confidence: ConfidenceLow}
	}
	// Shift x to its mean for numerical stability with unix-second inputs.
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	res := LinearResult{OK: true, Direction: DirectionStable, Confidence: ConfidenceLow}
	if sxx == 0 {
		res.Intercept = meanY
		return res
	}
	res.Slope = sxy / sxx
	res.Intercept = meanY - res.Slope*meanX

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		fit := res.Slope*xs[i] + res.Intercept
		ssRes += (ys[i] - fit) * (ys[i] - fit)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	if ssTot > 0 {
		res.R2 = 1 - ssRes/ssTot
		if res.R2 < 0 {
			res.R2 = 0
		}
	}

	if math.Abs(res.Slope) >= a.cfg.SlopeEpsilon {
		if res.Slope > 0 {
			res.Direction = DirectionIncreasing
		} else {
			res.Direction = DirectionDecreasing
		}
	}
	switch {
	case res.R2 > 0.7:
		res.Confidence = ConfidenceHigh
	case res.R2 > 0.3:
		res.Confidence = ConfidenceMedium
	}
	return res
}

// Seasonal looks for periodicity via normalized autocorrelation. A lag is a
// peak when its autocorrelation exceeds 0.3 and is locally maximal.
func (a *Analyzer) Seasonal(ys []float64) SeasonalResult {
	n := len(ys)
	maxLag := a.cfg.MaxLag
	if maxLag > n/2 {
		maxLag = n / 2
	}
	if n < 2*a.cfg.MovingWindow || maxLag < 2 {
		return SeasonalResult{}
	}
	var mean float64
	for _, v := range ys {
		mean += v
	}
	mean /= float64(n)
	var denom float64
	for _, v := range ys {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return SeasonalResult{OK: true}
	}
	ac := make([]float64, maxLag+1)
	for lag := 1; lag <= maxLag; lag++ {
		var num float64
		for i := 0; i+lag < n; i++ {
			num += (ys[i] - mean) * (ys[i+lag] - mean)
		}
		ac[lag] = num / denom
	}
	res := SeasonalResult{OK: true}
	for lag := 2; lag < maxLag; lag++ {
		if ac[lag] > 0.3 && ac[lag] > ac[lag-1] && ac[lag] >= ac[lag+1] {
			res.PeakLags = append(res.PeakLags, lag)
		}
	}
	res.Seasonal = len(res.PeakLags) > 0
	return res
}

// MovingAverage computes the windowed mean sequence and classifies direction
// by comparing the most recent window's mean against the preceding one: a
// relative change beyond ±5% counts as a move.
func (a *Analyzer) MovingAverage(ys []float64) MovingAverageResult {
	w := a.cfg.MovingWindow
	n := len(ys)
	if n < 2*w {
		return MovingAverageResult{Direction: DirectionStable}
	}
	averages := make([]float64, 0, n-w+1)
	var sum float64
	for i := 0; i < n; i++ {
		sum += ys[i]
		if i >= w {
			sum -= ys[i-w]
		}
		if i >= w-1 {
			averages = append(averages, sum/float64(w))
		}
	}
	recent := windowMean(ys[n-w:])
	earlier := windowMean(ys[n-2*w : n-w])

	res := MovingAverageResult{OK: true, Averages: averages, Direction: DirectionStable}
	if earlier == 0 {
		if recent > 0 {
			res.Direction = DirectionIncreasing
		} else if recent < 0 {
			res.Direction = DirectionDecreasing
		}
		return res
	}
	change := (recent - earlier) / math.Abs(earlier)
	if change > 0.05 {
		res.Direction = DirectionIncreasing
	} else if change < -0.05 {
		res.Direction = DirectionDecreasing
	}
	return res
}

func windowMean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
