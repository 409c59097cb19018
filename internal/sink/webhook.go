package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"wellwatch/internal/model"
)

// WebhookSink posts the alert as JSON to an external delivery gateway. Both
// the email relay and the SMS provider are consumed through this shape; the
// gateway owns actual message formatting and delivery.
type WebhookSink struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookSink(name, url string) *WebhookSink {
	return &WebhookSink{
		name:   name,
		url:    url,
		client: &http.Client{},
	}
}

func (s *WebhookSink) Name() string { return s.name }

func (s *WebhookSink) Send(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s sink: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s sink: gateway returned %s", s.name, resp.Status)
	}
	return nil
}
