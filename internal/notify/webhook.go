package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// webhookPayload is the JSON body posted to webhook targets.
type webhookPayload struct {
	Source string `json:"source"`
	model.Notification
	Unix int64 `json:"unix"`
}

// WebhookProvider posts notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook provider. An empty method means POST.
func NewWebhook(url, method string, headers map[string]string) *WebhookProvider {
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookProvider{
		url:     url,
		method:  method,
		headers: headers,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

func (w *WebhookProvider) Name() string { return "webhook" }

func (w *WebhookProvider) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(webhookPayload{Source: "batterymaster", Notification: n, Unix: n.Timestamp.Unix()})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, eventID(n))
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	return deliver(w.client, req, "webhook")
}

// eventID identifies a notification so receivers can drop duplicates.
func eventID(n model.Notification) string {
	return fmt.Sprintf("%s-%d", n.AlertType, n.Timestamp.Truncate(time.Second).Unix())
}
