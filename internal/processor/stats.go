package processor

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wellwatch/internal/model"
)

// Stats holds process-lifetime pipeline counters. Counters only ever move
// forward; LastProcessed tracks the most recent successfully processed
// event. The same values back the Prometheus registry, so /metrics and the
// JSON stats endpoint can never disagree.
type Stats struct {
	eventsProcessed  atomic.Uint64
	alertsGenerated  atomic.Uint64
	alertsSuppressed atomic.Uint64
	processingErrors atomic.Uint64
	lastProcessed    atomic.Int64 // unix nanos, 0 = never

	registry *prometheus.Registry
}

func NewStats() *Stats {
	s := &Stats{registry: prometheus.NewRegistry()}
	s.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wellwatch_events_processed_total",
			Help: "Telemetry events accepted into the pipeline.",
		}, func() float64 { return float64(s.eventsProcessed.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wellwatch_alerts_generated_total",
			Help: "Alerts dispatched to sinks.",
		}, func() float64 { return float64(s.alertsGenerated.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wellwatch_alerts_suppressed_total",
			Help: "Duplicate alerts dropped inside the dedup window.",
		}, func() float64 { return float64(s.alertsSuppressed.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wellwatch_processing_errors_total",
			Help: "Detector and sink failures, each isolated and counted.",
		}, func() float64 { return float64(s.processingErrors.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wellwatch_last_processed_timestamp_seconds",
			Help: "Unix time of the most recently processed event.",
		}, func() float64 { return float64(s.lastProcessed.Load()) / 1e9 }),
	)
	return s
}

func (s *Stats) IncEventsProcessed()  { s.eventsProcessed.Add(1) }
func (s *Stats) IncAlertsGenerated()  { s.alertsGenerated.Add(1) }
func (s *Stats) IncAlertsSuppressed() { s.alertsSuppressed.Add(1) }
func (s *Stats) IncProcessingErrors() { s.processingErrors.Add(1) }

func (s *Stats) MarkProcessed(now time.Time) {
	s.lastProcessed.Store(now.UnixNano())
}

func (s *Stats) Snapshot() model.ProcessorStats {
	var last time.Time
	if ns := s.lastProcessed.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC()
	}
	return model.ProcessorStats{
		EventsProcessed:  s.eventsProcessed.Load(),
		AlertsGenerated:  s.alertsGenerated.Load(),
		AlertsSuppressed: s.alertsSuppressed.Load(),
		ProcessingErrors: s.processingErrors.Load(),
		LastProcessed:    last,
	}
}

// Registry exposes the Prometheus registry for the API server.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }
