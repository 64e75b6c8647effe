package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"KPISentinel/internal/domain/models"
	xhttp "KPISentinel/pkg/http"
)

type webhookPayload struct {
	Text  string       `json:"text"`
	Alert models.Alert `json:"alert"`
}

// WebhookSink POSTs alerts as JSON. The text field makes the payload Slack-compatible.
type WebhookSink struct {
	url    string
	client *xhttp.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{url: url, client: xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("kpi-sentinel-webhook"))}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Notify(ctx context.Context, a models.Alert) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    s.url,
		Body:   webhookPayload{Text: FormatAlertLine(a), Alert: a},
	}, nil)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}
