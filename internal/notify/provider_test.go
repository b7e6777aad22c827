package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/config"
	"github.com/topabomb/BatteryMaster/internal/model"
)

type stubProvider struct {
	name string
	err  error
	sent []model.Notification
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Send(_ context.Context, n model.Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

func TestFromConfig(t *testing.T) {
	providers := FromConfig([]config.NotificationConfig{
		{Type: "ntfy", URL: "http://ntfy.local/", Topic: "battery"},
		{Type: "webhook", URL: "http://hooks.local"},
		{Type: "email", URL: "smtp://x"},
	})
	require.Len(t, providers, 2)
	assert.Equal(t, "ntfy", providers[0].Name())
	assert.Equal(t, "webhook", providers[1].Name())
	assert.Equal(t, "POST", providers[1].(*WebhookProvider).method)
}

func TestSendAll(t *testing.T) {
	ok := &stubProvider{name: "ok"}
	bad := &stubProvider{name: "bad", err: errors.New("boom")}

	err := SendAll(context.Background(), []Provider{bad, ok}, model.Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.sent, 1, "a failing provider must not stop delivery to the rest")
	assert.Len(t, bad.sent, 1)

	assert.NoError(t, SendAll(context.Background(), nil, model.Notification{}))
}
