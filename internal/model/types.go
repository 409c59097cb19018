package model

import "time"

// TelemetryEvent is one timestamped sensor reading from a device. Events are
// immutable once created; Timestamp is unix seconds as emitted by the device.
type TelemetryEvent struct {
	DeviceID    string            `json:"device_id"`
	Timestamp   float64           `json:"timestamp"`
	Temperature float64           `json:"temperature"`
	Pressure    float64           `json:"pressure"`
	Status      string            `json:"status,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Time converts the unix-seconds timestamp to a time.Time in UTC.
func (e TelemetryEvent) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

type Method string

const (
	MethodStatistical      Method = "statistical"
	MethodRuleBased        Method = "rule_based"
	MethodExternalModel    Method = "external_model"
	MethodEnsemble         Method = "ensemble"
	MethodTrend            Method = "trend"
	MethodInsufficientData Method = "insufficient_data"
)

// AnomalyVerdict is the outcome of evaluating one event against a device's
// history. Score is always within [0,1]. Degraded marks verdicts whose
// detector failed mid-evaluation; the verdict itself is still best-effort.
type AnomalyVerdict struct {
	DeviceID  string   `json:"device_id"`
	IsAnomaly bool     `json:"is_anomaly"`
	Score     float64  `json:"score"`
	Method    Method   `json:"method"`
	Reasons   []string `json:"reasons,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a dispatched notification. Immutable after dispatch; deduplication
// only suppresses later duplicates, it never mutates an existing alert.
type Alert struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	DeviceID  string            `json:"device_id"`
	AlertType string            `json:"alert_type"`
	Severity  Severity          `json:"severity"`
	Score     float64           `json:"score"`
	Reasons   []string          `json:"reasons,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// DedupKey identifies the alert for suppression inside the dedup window.
func (a Alert) DedupKey() string {
	return a.DeviceID + "|" + a.AlertType
}

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusCritical HealthStatus = "CRITICAL"
	StatusNoData   HealthStatus = "NO_DATA"
)

// DeviceHealth summarizes a device's recent stability and alert activity.
type DeviceHealth struct {
	DeviceID             string       `json:"device_id"`
	Status               HealthStatus `json:"status"`
	Score                float64      `json:"health_score"`
	TemperatureStability float64      `json:"temperature_stability"`
	PressureStability    float64      `json:"pressure_stability"`
	RecentAlerts         int          `json:"recent_alerts"`
	LastSeen             float64      `json:"last_seen,omitempty"`
}

// ProcessorStats are process-lifetime counters. All fields are monotonically
// non-decreasing except LastProcessed, which tracks the most recent event.
type ProcessorStats struct {
	EventsProcessed  uint64    `json:"events_processed"`
	AlertsGenerated  uint64    `json:"alerts_generated"`
	AlertsSuppressed uint64    `json:"alerts_suppressed"`
	ProcessingErrors uint64    `json:"processing_errors"`
	LastProcessed    time.Time `json:"last_processed"`
}
