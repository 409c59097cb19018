package alerts

import (
	"testing"
	"time"

	"wellwatch/internal/model"
)

func alertAt(ts time.Time, device, alertType string) model.Alert {
	return model.Alert{
		ID:        device + "-" + alertType + "-" + ts.Format(time.RFC3339Nano),
		Timestamp: ts,
		DeviceID:  device,
		AlertType: alertType,
		Severity:  model.SeverityMedium,
	}
}

func TestStoreLimitEvictsOldest(t *testing.T) {
	s := NewStore(3)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(alertAt(base.Add(time.Duration(i)*time.Second), "well-01", "ANOMALY_DETECTED"))
	}
	got := s.List(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts retained, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("expected oldest retained alert at +2s, got %v", got[0].Timestamp)
	}
}

func TestListLimit(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	for i := 0; i < 6; i++ {
		s.Add(alertAt(base.Add(time.Duration(i)*time.Second), "well-01", "ANOMALY_DETECTED"))
	}
	got := s.List(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if !got[1].Timestamp.Equal(base.Add(5 * time.Second)) {
		t.Fatalf("expected newest alert last, got %v", got[1].Timestamp)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(alertAt(base.Add(-2*time.Hour), "well-01", "ANOMALY_DETECTED"))
	s.Add(alertAt(base.Add(-30*time.Minute), "well-01", "TEMPERATURE_HIGH"))
	s.Add(alertAt(base.Add(-time.Minute), "well-02", "PRESSURE_HIGH"))
	got := s.Since(base.Add(-time.Hour))
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts within the hour, got %d", len(got))
	}
}

func TestCountForDevice(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(alertAt(base.Add(-2*time.Hour), "well-01", "ANOMALY_DETECTED"))
	s.Add(alertAt(base.Add(-10*time.Minute), "well-01", "TEMPERATURE_HIGH"))
	s.Add(alertAt(base.Add(-5*time.Minute), "well-02", "PRESSURE_HIGH"))
	if got := s.CountForDevice("well-01", base.Add(-time.Hour)); got != 1 {
		t.Fatalf("expected 1 recent alert for well-01, got %d", got)
	}
	if got := s.CountForDevice("well-03", base.Add(-time.Hour)); got != 0 {
		t.Fatalf("expected 0 alerts for unknown device, got %d", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Add(alertAt(time.Now().UTC(), "well-01", "ANOMALY_DETECTED"))
	s.Clear()
	if len(s.List(0)) != 0 {
		t.Fatalf("expected empty store after clear")
	}
}
