package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wellwatch/internal/alerts"
	"wellwatch/internal/analytics"
	"wellwatch/internal/api"
	"wellwatch/internal/config"
	"wellwatch/internal/detector"
	"wellwatch/internal/dispatch"
	"wellwatch/internal/ingest"
	"wellwatch/internal/logging"
	"wellwatch/internal/model"
	"wellwatch/internal/processor"
	"wellwatch/internal/scorer"
	"wellwatch/internal/sink"
	"wellwatch/internal/storage"
	"wellwatch/internal/trend"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "wellwatch.yaml", "path to config file")
	flag.Parse()

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("failed to load config: %v", err)
		}
		cfgMgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgMgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting wellwatch", "version", version, "config", cfgMgr.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := processor.NewStats()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			log.Fatalf("failed to initialize storage: %v", err)
		}
		defer store.Close()
	}

	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)

	var hub *sink.Hub
	sinks := []sink.Sink{sink.NewLogSink(logger)}
	if cfg.Dispatch.Sinks.Broadcast.Enabled {
		hub = sink.NewHub(logger)
		sinks = append(sinks, sink.NewBroadcastSink(hub))
	}
	if cfg.Dispatch.Sinks.Email.Enabled {
		sinks = append(sinks, sink.NewWebhookSink("email", cfg.Dispatch.Sinks.Email.URL))
	}
	if cfg.Dispatch.Sinks.SMS.Enabled {
		sinks = append(sinks, sink.NewWebhookSink("sms", cfg.Dispatch.Sinks.SMS.URL))
	}

	var persist dispatch.Persister
	if store != nil {
		persist = store
	}
	dispatcher := dispatch.New(cfg.Dispatch, sinks, alertsStore, stats, persist, logger)

	var modelScorer detector.Scorer
	if cfg.Detection.Model.Enabled {
		onnx, err := scorer.NewONNX(cfg.Detection.Model.Path)
		if err != nil {
			log.Fatalf("failed to load anomaly model: %v", err)
		}
		defer onnx.Close()
		modelScorer = onnx
		logger.Info("anomaly model loaded", "path", cfg.Detection.Model.Path)
	}

	trendDetector := detector.NewTrend(cfg.Trend, trend.NewAnalyzer(cfg.Trend))

	proc := processor.New(cfg, logger, processor.Options{
		Scorer:        modelScorer,
		TrendDetector: trendDetector,
		Dispatcher:    dispatcher,
		AlertStore:    alertsStore,
		Store:         store,
		Stats:         stats,
	})

	events := make(chan model.TelemetryEvent, cfg.Ingest.ChannelBuffer)
	proc.Start(ctx, events)

	ingest.StartREST(ctx, cfgMgr, events, logger)
	ingest.StartKafka(ctx, cfgMgr, events, logger)

	engine := analytics.NewEngine(cfg.Trend, proc)
	api.Start(ctx, cfgMgr, proc, engine, alertsStore, hub, logger, version)

	watchStop := make(chan struct{})
	if cfgMgr.Path() != "" {
		go cfgMgr.Watch(5*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded, detection changes apply on restart", "path", cfgMgr.Path(), "log_level", next.LogLevel)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			watchStop,
		)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	close(watchStop)
	cancel()
	proc.Close()
	if hub != nil {
		hub.Close()
	}
	logger.Info("shutdown complete", "stats", proc.Stats())
}
