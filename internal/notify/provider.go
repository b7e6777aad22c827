package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/topabomb/BatteryMaster/internal/config"
	"github.com/topabomb/BatteryMaster/internal/model"
)

const (
	sendTimeout = 10 * time.Second
	eventHeader = "X-BatteryMaster-Event"
)

// StatusError is returned when a target answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
}

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// FromConfig builds providers for the configured notification targets.
// Unknown types are skipped; config validation rejects them earlier.
func FromConfig(cfgs []config.NotificationConfig) []Provider {
	var providers []Provider
	for _, c := range cfgs {
		switch c.Type {
		case "ntfy":
			providers = append(providers, NewNtfy(c.URL, c.Topic))
		case "webhook":
			method := c.Method
			if method == "" {
				method = http.MethodPost
			}
			providers = append(providers, NewWebhook(c.URL, method, c.Headers))
		}
	}
	return providers
}

// SendAll delivers n to every provider and joins the failures.
func SendAll(ctx context.Context, providers []Provider, n model.Notification) error {
	var errs []error
	for _, p := range providers {
		if err := p.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// deliver sends req and maps a non-2xx answer to *StatusError. Transport
// errors are prefixed with the provider name.
func deliver(client *http.Client, req *http.Request, provider string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: provider, Code: resp.StatusCode}
	}
	return nil
}
