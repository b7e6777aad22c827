// Package alerter turns ingested readings into battery notifications.
package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
	"github.com/topabomb/BatteryMaster/internal/notify"
)

// AlertConfig holds configuration for alert rules. A nil rule is disabled.
type AlertConfig struct {
	StateChange *StateChangeAlert
	LowBattery  *ThresholdAlert
}

// StateChangeAlert fires when the battery enters a new state.
type StateChangeAlert struct {
	Cooldown time.Duration // per from→to pair
}

// ThresholdAlert fires when a value drops below a threshold.
type ThresholdAlert struct {
	Threshold float64
	Severity  string
	Cooldown  time.Duration
}

// DefaultAlertConfig returns sensible alert defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		StateChange: &StateChangeAlert{Cooldown: time.Minute},
		LowBattery: &ThresholdAlert{
			Threshold: 15, Severity: "critical", Cooldown: 30 * time.Minute,
		},
	}
}

type event struct {
	reading model.Reading
	changes model.ChangeSet
}

// Alerter evaluates rules and sends notifications.
type Alerter struct {
	device    string
	providers []notify.Provider
	config    AlertConfig
	events    chan event
	now       func() time.Time

	// Deduplication: maps alert key → last fired time
	lastFired map[string]time.Time

	// lowArmed is cleared once a low battery alert fired and re-armed when
	// the battery starts charging.
	lowArmed bool
}

// NewAlerter creates a new alerter.
func NewAlerter(device string, providers []notify.Provider, cfg AlertConfig) *Alerter {
	return &Alerter{
		device:    device,
		providers: providers,
		config:    cfg,
		events:    make(chan event, 64),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
		lowArmed:  true,
	}
}

// Observe queues a reading for evaluation. It never blocks; when the queue is
// full the reading is dropped.
func (a *Alerter) Observe(r model.Reading, cs model.ChangeSet) {
	select {
	case a.events <- event{reading: r, changes: cs}:
	default:
		slog.Warn("alerter queue full, dropping reading", "timestamp", r.Battery.Timestamp)
	}
}

// Run starts the alerter evaluation loop.
func (a *Alerter) Run(ctx context.Context) error {
	slog.Info("alerter started", "providers", len(a.providers))

	for {
		select {
		case <-ctx.Done():
			slog.Info("alerter stopped")
			return ctx.Err()
		case ev := <-a.events:
			a.evaluate(ctx, ev)
		}
	}
}

func (a *Alerter) evaluate(ctx context.Context, ev event) {
	now := a.now()
	for _, n := range a.rules(ev, now) {
		if err := notify.SendAll(ctx, a.providers, n); err != nil {
			slog.Error("sending notification", "alert", n.AlertType, "error", err)
			continue
		}
		slog.Info("notification sent", "alert", n.AlertType, "title", n.Title)
	}
	a.cleanup(now)
}

// rules returns the notifications ev should trigger and records them as
// fired.
func (a *Alerter) rules(ev event, now time.Time) []model.Notification {
	var out []model.Notification
	b := ev.reading.Battery

	if tr := ev.changes.Transition; tr != nil && a.config.StateChange != nil {
		key := fmt.Sprintf("state_change:%s>%s", tr.From, tr.To)
		if a.shouldFire(key, a.config.StateChange.Cooldown, now) {
			out = append(out, model.Notification{
				AlertType: "state_change",
				Severity:  transitionSeverity(tr.To),
				Title:     fmt.Sprintf("%s: %s", a.device, tr.To),
				Message:   fmt.Sprintf("Battery changed from %s to %s at %.0f%%", tr.From, tr.To, tr.Percentage),
				Device:    a.device,
				Timestamp: time.Unix(tr.At, 0),
				Metadata:  map[string]string{"from": string(tr.From), "to": string(tr.To)},
			})
		}
	}

	if b.State == model.StateCharging || b.State == model.StateFull {
		a.lowArmed = true
	}
	if low := a.config.LowBattery; low != nil && a.lowArmed &&
		b.State == model.StateDischarging && float64(b.Percentage) < low.Threshold {
		if a.shouldFire("low_battery", low.Cooldown, now) {
			a.lowArmed = false
			out = append(out, model.Notification{
				AlertType: "low_battery",
				Severity:  low.Severity,
				Title:     fmt.Sprintf("%s: battery low", a.device),
				Message:   fmt.Sprintf("Battery at %.0f%%, below %.0f%%", b.Percentage, low.Threshold),
				Device:    a.device,
				Timestamp: time.Unix(b.Timestamp, 0),
				Metadata:  map[string]string{"to": string(b.State)},
			})
		}
	}
	return out
}

func (a *Alerter) shouldFire(key string, cooldown time.Duration, now time.Time) bool {
	if last, ok := a.lastFired[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	a.lastFired[key] = now
	return true
}

func (a *Alerter) cleanup(now time.Time) {
	const maxAge = 6 * time.Hour
	for key, t := range a.lastFired {
		if now.Sub(t) > maxAge {
			delete(a.lastFired, key)
		}
	}
}

func transitionSeverity(to model.BatteryState) string {
	switch to {
	case model.StateDischarging, model.StateEmpty:
		return "warning"
	default:
		return "info"
	}
}
