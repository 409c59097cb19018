package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"wellwatch/internal/alerts"
	"wellwatch/internal/config"
	"wellwatch/internal/detector"
	"wellwatch/internal/dispatch"
	"wellwatch/internal/health"
	"wellwatch/internal/history"
	"wellwatch/internal/model"
	"wellwatch/internal/storage"
)

// ErrInvalidEvent marks events rejected at the ingestion boundary. Rejected
// events are never inserted into history.
var ErrInvalidEvent = errors.New("invalid event")

// ErrDraining is returned once shutdown has begun.
var ErrDraining = errors.New("processor draining")

// Processor orchestrates the pipeline: validate, append to history, run the
// detector chain, dispatch alerts, update stats.
//
// The unit of serialization is the device. Synchronous callers are serialized
// through a per-device lock; the channel front end (Start) additionally gives
// each device a single worker goroutine so same-device events process in
// arrival order while devices proceed in parallel, with a semaphore bounding
// total in-flight pipelines.
type Processor struct {
	cfg       *config.Config
	logger    *slog.Logger
	histories *history.Set
	ensemble  *detector.Ensemble
	trend     detector.Detector
	scorer    *health.Scorer
	dispatch  *dispatch.Dispatcher
	alerts    *alerts.Store
	store     storage.Store
	stats     *Stats
	sem       *semaphore.Weighted

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	workers map[string]chan model.TelemetryEvent
	wg      sync.WaitGroup
	closed  bool
}

// Options are the injected collaborators. Scorer and Store may be nil;
// TrendDetector may be nil to disable trend verdicts. Stats is shared with
// the dispatcher so alert counters land in the same snapshot; nil means a
// fresh one.
type Options struct {
	Scorer        detector.Scorer
	TrendDetector detector.Detector
	Dispatcher    *dispatch.Dispatcher
	AlertStore    *alerts.Store
	Store         storage.Store
	Stats         *Stats
}

func New(cfg *config.Config, logger *slog.Logger, opts Options) *Processor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	maxInFlight := int64(cfg.Processor.MaxConcurrentDevices)
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Processor{
		cfg:       cfg,
		logger:    logger,
		histories: history.NewSet(cfg.Processor.BufferCapacityPerDevice),
		ensemble:  detector.NewEnsemble(cfg.Detection, opts.Scorer, logger),
		trend:     opts.TrendDetector,
		scorer:    health.NewScorer(cfg.Health),
		dispatch:  opts.Dispatcher,
		alerts:    opts.AlertStore,
		store:     opts.Store,
		stats:     stats,
		sem:       semaphore.NewWeighted(maxInFlight),
		locks:     make(map[string]*sync.Mutex),
		workers:   make(map[string]chan model.TelemetryEvent),
	}
}

func validate(ev model.TelemetryEvent) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: empty device_id", ErrInvalidEvent)
	}
	// The flipped comparison also catches NaN timestamps.
	if !(ev.Timestamp >= 0) {
		return fmt.Errorf("%w: timestamp %v is not a non-negative number", ErrInvalidEvent, ev.Timestamp)
	}
	if math.IsNaN(ev.Temperature) || math.IsInf(ev.Temperature, 0) {
		return fmt.Errorf("%w: temperature is not finite", ErrInvalidEvent)
	}
	if math.IsNaN(ev.Pressure) || math.IsInf(ev.Pressure, 0) {
		return fmt.Errorf("%w: pressure is not finite", ErrInvalidEvent)
	}
	return nil
}

// Process runs one event through the full pipeline and returns every verdict
// the chain produced: one per ensemble signal, the combined ensemble verdict,
// and the trend verdict. A detector failure degrades its verdict and is
// counted, never propagated.
func (p *Processor) Process(ev model.TelemetryEvent) ([]model.AnomalyVerdict, error) {
	if err := validate(ev); err != nil {
		return nil, err
	}
	if ev.Status == "" {
		ev.Status = "OK"
	}

	lock := p.deviceLock(ev.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	hist := p.histories.Get(ev.DeviceID)
	hist.Append(ev)
	if p.store != nil {
		if err := p.store.SaveEvent(context.Background(), ev); err != nil && p.logger != nil {
			p.logger.Warn("event persistence failed", "device_id", ev.DeviceID, "err", err)
		}
	}

	signals := p.ensemble.Signals()
	verdicts := make([]model.AnomalyVerdict, 0, len(signals)+2)
	for _, sig := range signals {
		verdicts = append(verdicts, p.runDetector(sig, ev, hist))
	}
	combined := p.ensemble.Combine(ev, verdicts)
	verdicts = append(verdicts, combined)

	if p.trend != nil {
		trendVerdict := p.runDetector(p.trend, ev, hist)
		verdicts = append(verdicts, trendVerdict)
		if p.dispatch != nil && trendVerdict.IsAnomaly {
			p.dispatch.DispatchVerdict(ev, trendVerdict)
		}
	}
	if p.dispatch != nil {
		if combined.IsAnomaly {
			p.dispatch.DispatchVerdict(ev, combined)
		}
		for _, b := range detector.Breaches(ev, p.cfg.Detection.Rules) {
			p.dispatch.DispatchBreach(ev, b)
		}
	}

	p.stats.IncEventsProcessed()
	p.stats.MarkProcessed(time.Now().UTC())
	return verdicts, nil
}

// runDetector isolates a single detector: a returned error or a panic marks
// the verdict degraded and bumps processing_errors, and the chain moves on.
func (p *Processor) runDetector(d detector.Detector, ev model.TelemetryEvent, hist *history.History) (verdict model.AnomalyVerdict) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
				verdict = model.AnomalyVerdict{DeviceID: ev.DeviceID, Method: model.MethodInsufficientData}
			}
		}()
		verdict, err = d.Evaluate(ev, hist)
	}()
	if err != nil {
		verdict.Degraded = true
		p.stats.IncProcessingErrors()
		if p.logger != nil {
			p.logger.Warn("detector failed", "detector", d.Name(), "device_id", ev.DeviceID, "err", err)
		}
	}
	return verdict
}

func (p *Processor) deviceLock(deviceID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[deviceID] = lock
	}
	return lock
}

// Start consumes events from in until ctx is cancelled. Each device gets its
// own worker goroutine fed through a bounded queue, preserving per-device
// arrival order; the semaphore caps pipelines in flight across devices. A
// full device queue drops the event and counts it, never blocking the
// router.
func (p *Processor) Start(ctx context.Context, in <-chan model.TelemetryEvent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case ev, ok := <-in:
				if !ok {
					return
				}
				p.route(ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Processor) route(ev model.TelemetryEvent) {
	if err := validate(ev); err != nil {
		p.stats.IncProcessingErrors()
		if p.logger != nil {
			p.logger.Warn("rejected event", "device_id", ev.DeviceID, "err", err)
		}
		return
	}
	ch, err := p.workerFor(ev.DeviceID)
	if err != nil {
		return
	}
	select {
	case ch <- ev:
	default:
		p.stats.IncProcessingErrors()
		if p.logger != nil {
			p.logger.Warn("device queue full, dropping event", "device_id", ev.DeviceID)
		}
	}
}

func (p *Processor) workerFor(deviceID string) (chan model.TelemetryEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrDraining
	}
	if ch, ok := p.workers[deviceID]; ok {
		return ch, nil
	}
	depth := p.cfg.Processor.DeviceQueueDepth
	if depth <= 0 {
		depth = 256
	}
	ch := make(chan model.TelemetryEvent, depth)
	p.workers[deviceID] = ch
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for ev := range ch {
			_ = p.sem.Acquire(context.Background(), 1)
			if _, err := p.Process(ev); err != nil && p.logger != nil {
				p.logger.Warn("pipeline error", "device_id", ev.DeviceID, "err", err)
			}
			p.sem.Release(1)
		}
	}()
	return ch, nil
}

// Close drains the pipeline: no new events are accepted, queued events
// finish processing, then sink deliveries are awaited. Cancel the ingest
// context before calling Close so the router has stopped feeding workers.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.workers {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
	if p.dispatch != nil {
		p.dispatch.Close()
	}
}

// DeviceHealth reports current health for one device without mutating state.
func (p *Processor) DeviceHealth(deviceID string) model.DeviceHealth {
	hist, ok := p.histories.Peek(deviceID)
	if !ok {
		return model.DeviceHealth{DeviceID: deviceID, Status: model.StatusNoData}
	}
	recent := 0
	if p.alerts != nil {
		cutoff := time.Now().UTC().Add(-p.cfg.Health.AlertWindow)
		recent = p.alerts.CountForDevice(deviceID, cutoff)
	}
	return p.scorer.Score(deviceID, hist, recent)
}

// RecentAlerts returns alerts dispatched within the last windowSeconds.
func (p *Processor) RecentAlerts(windowSeconds int) []model.Alert {
	if p.alerts == nil {
		return nil
	}
	if windowSeconds <= 0 {
		windowSeconds = 3600
	}
	cutoff := time.Now().UTC().Add(-time.Duration(windowSeconds) * time.Second)
	return p.alerts.Since(cutoff)
}

// Stats returns a consistent snapshot of the pipeline counters.
func (p *Processor) Stats() model.ProcessorStats {
	return p.stats.Snapshot()
}

// Counters exposes the live stats, including the Prometheus registry.
func (p *Processor) Counters() *Stats { return p.stats }

// Devices lists every device that has appeared in the stream.
func (p *Processor) Devices() []string {
	return p.histories.Devices()
}

// History returns the event window for one device, if the device is known.
func (p *Processor) History(deviceID string) (*history.History, bool) {
	return p.histories.Peek(deviceID)
}
