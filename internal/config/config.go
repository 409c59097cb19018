package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Trend     TrendConfig     `json:"trend" yaml:"trend"`
	Health    HealthConfig    `json:"health" yaml:"health"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Processor ProcessorConfig `json:"processor" yaml:"processor"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type DetectionConfig struct {
	WindowSize      int           `json:"window_size" yaml:"window_size"`
	MinPoints       int           `json:"min_points" yaml:"min_points"`
	ZScoreThreshold float64       `json:"z_score_threshold" yaml:"z_score_threshold"`
	VoteThreshold   float64       `json:"vote_threshold" yaml:"vote_threshold"`
	Epsilon         float64       `json:"epsilon" yaml:"epsilon"`
	Weights         WeightsConfig `json:"weights" yaml:"weights"`
	Rules           RulesConfig   `json:"rules" yaml:"rules"`
	Model           ModelConfig   `json:"model" yaml:"model"`
}

// WeightsConfig sets the relative vote weight of each ensemble signal.
type WeightsConfig struct {
	Statistical float64 `json:"statistical" yaml:"statistical"`
	Rules       float64 `json:"rules" yaml:"rules"`
	Model       float64 `json:"model" yaml:"model"`
}

// RulesConfig holds absolute limits and normal operating ranges. Values
// outside the hard limits alert on their own; both metrics exceeding their
// secondary thresholds at once trips the cross-parameter rule.
type RulesConfig struct {
	TemperatureMax       float64 `json:"temperature_max" yaml:"temperature_max"`
	TemperatureMin       float64 `json:"temperature_min" yaml:"temperature_min"`
	PressureMax          float64 `json:"pressure_max" yaml:"pressure_max"`
	PressureMin          float64 `json:"pressure_min" yaml:"pressure_min"`
	TemperatureSecondary float64 `json:"temperature_secondary" yaml:"temperature_secondary"`
	PressureSecondary    float64 `json:"pressure_secondary" yaml:"pressure_secondary"`
	NormalTemperature    Range   `json:"normal_temperature" yaml:"normal_temperature"`
	NormalPressure       Range   `json:"normal_pressure" yaml:"normal_pressure"`
}

type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

func (r Range) Contains(v float64) bool {
	if r.Low == 0 && r.High == 0 {
		return true
	}
	return v >= r.Low && v <= r.High
}

type ModelConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Path      string  `json:"path" yaml:"path"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

type TrendConfig struct {
	SlopeEpsilon       float64 `json:"slope_epsilon" yaml:"slope_epsilon"`
	MaxLag             int     `json:"max_lag" yaml:"max_lag"`
	MovingWindow       int     `json:"moving_window" yaml:"moving_window"`
	TemperatureSlope   float64 `json:"temperature_slope" yaml:"temperature_slope"`
	PressureSlope      float64 `json:"pressure_slope" yaml:"pressure_slope"`
	MinPointsForAlerts int     `json:"min_points_for_alerts" yaml:"min_points_for_alerts"`
}

type HealthConfig struct {
	Thresholds           HealthThresholds `json:"health_thresholds" yaml:"health_thresholds"`
	TemperatureBadStd    float64          `json:"temperature_bad_std" yaml:"temperature_bad_std"`
	PressureBadStd       float64          `json:"pressure_bad_std" yaml:"pressure_bad_std"`
	AlertWindow          time.Duration    `json:"alert_window" yaml:"alert_window"`
	RecentAlertPenalty   float64          `json:"recent_alert_penalty" yaml:"recent_alert_penalty"`
	MaxRecentAlertWeight float64          `json:"max_recent_alert_weight" yaml:"max_recent_alert_weight"`
}

type HealthThresholds struct {
	Healthy  float64 `json:"healthy" yaml:"healthy"`
	Degraded float64 `json:"degraded" yaml:"degraded"`
}

type DispatchConfig struct {
	DedupWindowSeconds int           `json:"dedup_window_seconds" yaml:"dedup_window_seconds"`
	DedupCacheSize     int           `json:"dedup_cache_size" yaml:"dedup_cache_size"`
	SinkTimeout        time.Duration `json:"sink_timeout" yaml:"sink_timeout"`
	Sinks              SinksConfig   `json:"sinks" yaml:"sinks"`
}

type SinksConfig struct {
	Broadcast BroadcastSinkConfig `json:"broadcast" yaml:"broadcast"`
	Email     WebhookSinkConfig   `json:"email" yaml:"email"`
	SMS       WebhookSinkConfig   `json:"sms" yaml:"sms"`
}

type BroadcastSinkConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// WebhookSinkConfig points at an external delivery gateway (mail relay, SMS
// provider) that accepts the alert as a JSON POST.
type WebhookSinkConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

type ProcessorConfig struct {
	BufferCapacityPerDevice int `json:"buffer_capacity_per_device" yaml:"buffer_capacity_per_device"`
	MaxConcurrentDevices    int `json:"max_concurrent_devices" yaml:"max_concurrent_devices"`
	DeviceQueueDepth        int `json:"device_queue_depth" yaml:"device_queue_depth"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Detection: DetectionConfig{
			WindowSize:      24,
			MinPoints:       10,
			ZScoreThreshold: 3.0,
			VoteThreshold:   0.5,
			Epsilon:         1e-8,
			Weights:         WeightsConfig{Statistical: 1.0, Rules: 1.0, Model: 1.0},
			Rules: RulesConfig{
				TemperatureMax:       120,
				TemperatureMin:       40,
				PressureMax:          300,
				PressureMin:          100,
				TemperatureSecondary: 110,
				PressureSecondary:    280,
			},
			Model: ModelConfig{Enabled: false, Threshold: 0.5},
		},
		Trend: TrendConfig{
			SlopeEpsilon:       0.01,
			MaxLag:             48,
			MovingWindow:       5,
			TemperatureSlope:   0.5,
			PressureSlope:      2.0,
			MinPointsForAlerts: 20,
		},
		Health: HealthConfig{
			Thresholds:           HealthThresholds{Healthy: 0.7, Degraded: 0.4},
			TemperatureBadStd:    10,
			PressureBadStd:       50,
			AlertWindow:          60 * time.Minute,
			RecentAlertPenalty:   0.1,
			MaxRecentAlertWeight: 0.5,
		},
		Dispatch: DispatchConfig{
			DedupWindowSeconds: 60,
			DedupCacheSize:     10000,
			SinkTimeout:        5 * time.Second,
			Sinks: SinksConfig{
				Broadcast: BroadcastSinkConfig{Enabled: true},
			},
		},
		Processor: ProcessorConfig{
			BufferCapacityPerDevice: 10000,
			MaxConcurrentDevices:    64,
			DeviceQueueDepth:        256,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:wellwatch.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Detection.WindowSize <= 0 {
		cfg.Detection.WindowSize = 24
	}
	if cfg.Detection.MinPoints <= 0 {
		cfg.Detection.MinPoints = 10
	}
	if cfg.Detection.ZScoreThreshold <= 0 {
		cfg.Detection.ZScoreThreshold = 3.0
	}
	if cfg.Detection.VoteThreshold <= 0 {
		cfg.Detection.VoteThreshold = 0.5
	}
	if cfg.Detection.Epsilon <= 0 {
		cfg.Detection.Epsilon = 1e-8
	}
	if cfg.Detection.Weights == (WeightsConfig{}) {
		cfg.Detection.Weights = WeightsConfig{Statistical: 1.0, Rules: 1.0, Model: 1.0}
	}
	if cfg.Detection.Model.Threshold <= 0 {
		cfg.Detection.Model.Threshold = 0.5
	}
	if cfg.Trend.SlopeEpsilon <= 0 {
		cfg.Trend.SlopeEpsilon = 0.01
	}
	if cfg.Trend.MaxLag <= 0 {
		cfg.Trend.MaxLag = 48
	}
	if cfg.Trend.MovingWindow <= 0 {
		cfg.Trend.MovingWindow = 5
	}
	if cfg.Health.Thresholds.Healthy <= 0 {
		cfg.Health.Thresholds.Healthy = 0.7
	}
	if cfg.Health.Thresholds.Degraded <= 0 {
		cfg.Health.Thresholds.Degraded = 0.4
	}
	if cfg.Health.TemperatureBadStd <= 0 {
		cfg.Health.TemperatureBadStd = 10
	}
	if cfg.Health.PressureBadStd <= 0 {
		cfg.Health.PressureBadStd = 50
	}
	if cfg.Health.AlertWindow <= 0 {
		cfg.Health.AlertWindow = 60 * time.Minute
	}
	if cfg.Health.RecentAlertPenalty <= 0 {
		cfg.Health.RecentAlertPenalty = 0.1
	}
	if cfg.Health.MaxRecentAlertWeight <= 0 {
		cfg.Health.MaxRecentAlertWeight = 0.5
	}
	if cfg.Dispatch.DedupWindowSeconds <= 0 {
		cfg.Dispatch.DedupWindowSeconds = 60
	}
	if cfg.Dispatch.DedupCacheSize <= 0 {
		cfg.Dispatch.DedupCacheSize = 10000
	}
	if cfg.Dispatch.SinkTimeout <= 0 {
		cfg.Dispatch.SinkTimeout = 5 * time.Second
	}
	if cfg.Processor.BufferCapacityPerDevice <= 0 {
		cfg.Processor.BufferCapacityPerDevice = 10000
	}
	if cfg.Processor.MaxConcurrentDevices <= 0 {
		cfg.Processor.MaxConcurrentDevices = 64
	}
	if cfg.Processor.DeviceQueueDepth <= 0 {
		cfg.Processor.DeviceQueueDepth = 256
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Detection.VoteThreshold > 1 {
		return fmt.Errorf("detection.vote_threshold must be within (0,1], got %v", cfg.Detection.VoteThreshold)
	}
	if cfg.Detection.Model.Enabled && cfg.Detection.Model.Path == "" {
		return errors.New("detection.model.path required when detection.model.enabled is true")
	}
	if cfg.Health.Thresholds.Degraded >= cfg.Health.Thresholds.Healthy {
		return fmt.Errorf("health_thresholds.degraded (%v) must be below healthy (%v)",
			cfg.Health.Thresholds.Degraded, cfg.Health.Thresholds.Healthy)
	}
	if cfg.Dispatch.Sinks.Email.Enabled && cfg.Dispatch.Sinks.Email.URL == "" {
		return errors.New("dispatch.sinks.email.url required when email sink is enabled")
	}
	if cfg.Dispatch.Sinks.SMS.Enabled && cfg.Dispatch.Sinks.SMS.URL == "" {
		return errors.New("dispatch.sinks.sms.url required when sms sink is enabled")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config, for tests and embedded use.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}
