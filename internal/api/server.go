// Package api exposes the read and admin surface of the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wellwatch/internal/alerts"
	"wellwatch/internal/analytics"
	"wellwatch/internal/config"
	"wellwatch/internal/model"
	"wellwatch/internal/processor"
	"wellwatch/internal/sink"
)

type Server struct {
	cfg       *config.Manager
	proc      *processor.Processor
	analytics *analytics.Engine
	alerts    *alerts.Store
	hub       *sink.Hub
	logger    *slog.Logger
	version   string
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path"`
	Ingest     ingestStatus    `json:"ingest"`
	API        apiStatus       `json:"api"`
	Detection  detectionStatus `json:"detection"`
	Clients    int             `json:"ws_clients"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type detectionStatus struct {
	WindowSize    int     `json:"window_size"`
	MinPoints     int     `json:"min_points"`
	ZScore        float64 `json:"z_score_threshold"`
	VoteThreshold float64 `json:"vote_threshold"`
	ModelEnabled  bool    `json:"model_enabled"`
}

func Start(ctx context.Context, cfg *config.Manager, proc *processor.Processor, engine *analytics.Engine, alertsStore *alerts.Store, hub *sink.Hub, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:       cfg,
		proc:      proc,
		analytics: engine,
		alerts:    alertsStore,
		hub:       hub,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/overview", server.handleOverview)
	mux.HandleFunc("/devices", server.handleDevices)
	mux.HandleFunc("/devices/", server.handleDevice)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.Handle("/metrics", promhttp.HandlerFor(proc.Counters().Registry(), promhttp.HandlerOpts{}))
	if hub != nil {
		mux.HandleFunc("/ws", hub.ServeWS)
	}

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Detection: detectionStatus{
			WindowSize:    cfg.Detection.WindowSize,
			MinPoints:     cfg.Detection.MinPoints,
			ZScore:        cfg.Detection.ZScoreThreshold,
			VoteThreshold: cfg.Detection.VoteThreshold,
			ModelEnabled:  cfg.Detection.Model.Enabled,
		},
		Clients: clients,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.Overview())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	devices := s.proc.Devices()
	healths := make([]model.DeviceHealth, 0, len(devices))
	for _, id := range devices {
		healths = append(healths, s.proc.DeviceHealth(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": healths,
		"count":   len(healths),
	})
}

// handleDevice serves /devices/{id}/health and /devices/{id}/analytics.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/devices/")
	parts := strings.SplitN(rest, "/", 2)
	deviceID := parts[0]
	if deviceID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	view := "health"
	if len(parts) == 2 {
		view = parts[1]
	}
	switch view {
	case "health":
		writeJSON(w, http.StatusOK, s.proc.DeviceHealth(deviceID))
	case "analytics":
		report, ok := s.analytics.Device(deviceID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		if ts, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			list = s.alerts.Since(ts)
		} else {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.proc.Stats())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.alerts != nil {
			s.alerts.Clear()
		}
		if s.analytics != nil {
			s.analytics.Clear()
		}
	case "alerts":
		if s.alerts != nil {
			s.alerts.Clear()
		}
	case "analytics":
		if s.analytics != nil {
			s.analytics.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
