package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// NtfyProvider publishes notifications to an ntfy topic.
type NtfyProvider struct {
	url    string
	topic  string
	client *http.Client
}

// NewNtfy creates an ntfy provider for topic on the server at url.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: &http.Client{Timeout: sendTimeout},
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url+"/"+n.topic, strings.NewReader(notif.Message))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}

	req.Header.Set("Title", notif.Title)
	req.Header.Set("Priority", ntfyPriority(notif.Severity))
	req.Header.Set("Tags", ntfyTags(notif))
	req.Header.Set(eventHeader, eventID(notif))
	if notif.Device != "" {
		req.Header.Set("X-Device", notif.Device)
	}
	return deliver(n.client, req, "ntfy")
}

// ntfyPriority maps a severity onto ntfy's 1-5 scale.
func ntfyPriority(severity string) string {
	switch severity {
	case "critical":
		return "5"
	case "info":
		return "2"
	default:
		return "3"
	}
}

// ntfyTags renders emoji tags: one for the severity, the alert type, and one
// for whether the battery is now on external power.
func ntfyTags(n model.Notification) string {
	var tags []string
	switch n.Severity {
	case "critical":
		tags = append(tags, "rotating_light")
	case "warning":
		tags = append(tags, "warning")
	case "info":
		tags = append(tags, "information_source")
	}
	if n.AlertType != "" {
		tags = append(tags, n.AlertType)
	}
	switch model.BatteryState(n.Metadata["to"]) {
	case model.StateCharging, model.StateFull:
		tags = append(tags, "electric_plug")
	case model.StateDischarging, model.StateEmpty:
		tags = append(tags, "battery")
	}
	return strings.Join(tags, ",")
}
