package notify

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func TestNtfySend_LowBattery(t *testing.T) {
	srv, req, body := captureServer(t, http.StatusOK)

	p := NewNtfy(srv.URL+"/", "battery")
	err := p.Send(context.Background(), model.Notification{
		AlertType: "low_battery",
		Severity:  "critical",
		Title:     "laptop: battery low",
		Message:   "Battery at 8%, below 15%",
		Device:    "laptop",
		Timestamp: time.Unix(1_700_000_100, 0),
		Metadata:  map[string]string{"to": "Discharging"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/battery", req.URL.Path)
	assert.Equal(t, "laptop: battery low", req.Header.Get("Title"))
	assert.Equal(t, "laptop", req.Header.Get("X-Device"))
	assert.Equal(t, "5", req.Header.Get("Priority"))
	assert.Equal(t, "rotating_light,low_battery,battery", req.Header.Get("Tags"))
	assert.Equal(t, "low_battery-1700000100", req.Header.Get(eventHeader))
	assert.Equal(t, "Battery at 8%, below 15%", string(*body))
}

func TestNtfySend_NoDeviceHeader(t *testing.T) {
	srv, req, _ := captureServer(t, http.StatusOK)

	require.NoError(t, NewNtfy(srv.URL, "battery").Send(context.Background(), model.Notification{Severity: "info"}))
	assert.Empty(t, req.Header.Get("X-Device"))
}

func TestNtfyPriority(t *testing.T) {
	for severity, want := range map[string]string{
		"critical": "5",
		"warning":  "3",
		"info":     "2",
		"bogus":    "3",
		"":         "3",
	} {
		assert.Equal(t, want, ntfyPriority(severity), severity)
	}
}

func TestNtfyTags(t *testing.T) {
	tests := []struct {
		name string
		n    model.Notification
		want string
	}{
		{"charging", model.Notification{Severity: "info", AlertType: "state_change", Metadata: map[string]string{"to": "Charging"}}, "information_source,state_change,electric_plug"},
		{"full", model.Notification{Severity: "info", AlertType: "state_change", Metadata: map[string]string{"to": "Full"}}, "information_source,state_change,electric_plug"},
		{"discharging", model.Notification{Severity: "warning", AlertType: "state_change", Metadata: map[string]string{"to": "Discharging"}}, "warning,state_change,battery"},
		{"empty", model.Notification{Severity: "warning", AlertType: "state_change", Metadata: map[string]string{"to": "Empty"}}, "warning,state_change,battery"},
		{"unknown target", model.Notification{Severity: "info", AlertType: "state_change", Metadata: map[string]string{"to": "Unknown"}}, "information_source,state_change"},
		{"bare", model.Notification{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ntfyTags(tt.n))
		})
	}
}

func TestNtfySend_Errors(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusTooManyRequests)

	err := NewNtfy(srv.URL, "battery").Send(context.Background(), discharging)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.EqualError(t, err, "ntfy: unexpected status 429")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewNtfy(srv.URL, "battery").Send(ctx, discharging)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "ntfy: send:")

	err = NewNtfy("://invalid", "battery").Send(context.Background(), discharging)
	assert.ErrorContains(t, err, "ntfy: build request:")
}

func TestNewNtfy(t *testing.T) {
	p := NewNtfy("http://example.com/", "battery")
	assert.Equal(t, "ntfy", p.Name())
	assert.Equal(t, "http://example.com", p.url)
}
