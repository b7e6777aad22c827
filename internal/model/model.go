// Package model defines all shared domain types for BatteryMaster.
package model

import (
	"strings"
	"time"
)

// BatteryState is the charging state reported by the battery.
type BatteryState string

const (
	StateUnknown     BatteryState = "Unknown"
	StateCharging    BatteryState = "Charging"
	StateDischarging BatteryState = "Discharging"
	StateFull        BatteryState = "Full"
	StateEmpty       BatteryState = "Empty"
)

// ParseBatteryState maps a textual state to a BatteryState. Anything it does
// not recognise is StateUnknown. Matching is case-insensitive and also
// accepts the kernel's "Not charging" spelling as Full.
func ParseBatteryState(s string) BatteryState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "charging":
		return StateCharging
	case "discharging":
		return StateDischarging
	case "full", "not charging":
		return StateFull
	case "empty":
		return StateEmpty
	default:
		return StateUnknown
	}
}

// BatterySnapshot is one reading of the battery.
type BatterySnapshot struct {
	Timestamp      int64        `json:"timestamp"` // unix seconds
	State          BatteryState `json:"state"`
	StateChanged   bool         `json:"state_changed"`
	Percentage     float32      `json:"percentage"`
	EnergyRate     float32      `json:"energy_rate"` // watts
	Voltage        float32      `json:"voltage"`
	StateOfHealth  float32      `json:"state_of_health"`
	Capacity       float32      `json:"capacity"` // Wh
	FullCapacity   float32      `json:"full_capacity"`
	DesignCapacity float32      `json:"design_capacity"`
}

// SystemSnapshot is one reading of host metrics taken alongside a battery snapshot.
type SystemSnapshot struct {
	CPULoad          float32 `json:"cpu_load"`
	ScreenBrightness float32 `json:"screen_brightness"` // 0-100
}

// TierSample is one row of the realtime or one-minute tier.
type TierSample struct {
	Timestamp        int64        `json:"timestamp"`
	State            BatteryState `json:"state"`
	Percentage       float32      `json:"percentage"`
	EnergyRate       float32      `json:"energy_rate"`
	Voltage          float32      `json:"voltage"`
	CPULoad          float32      `json:"cpu_load"`
	ScreenBrightness float32      `json:"screen_brightness"`
	StateOfHealth    float32      `json:"state_of_health"`
}

// HistoryRecord is one battery state interval. EndAt is nil while the
// interval is open.
type HistoryRecord struct {
	Timestamp        int64         `json:"timestamp"`
	State            BatteryState  `json:"state"`
	Prev             *BatteryState `json:"prev"`
	EndAt            *int64        `json:"end_at"`
	Capacity         float32       `json:"capacity"`
	FullCapacity     float32       `json:"full_capacity"`
	DesignCapacity   float32       `json:"design_capacity"`
	Percentage       float32       `json:"percentage"`
	StateOfHealth    float32       `json:"state_of_health"`
	EnergyRate       float32       `json:"energy_rate"`
	Voltage          float32       `json:"voltage"`
	CPULoad          float32       `json:"cpu_load"`
	ScreenBrightness float32       `json:"screen_brightness"`
}

// Open reports whether the interval has not been closed yet.
func (r HistoryRecord) Open() bool { return r.EndAt == nil }

// HistoryInfo is a history record as returned by paginated queries, with
// deltas against the chronologically previous record in the queried window.
// Deltas are nil for the oldest record of the window.
type HistoryInfo struct {
	HistoryRecord
	TimestampDelta     *int64   `json:"timestamp_delta"`
	StateOfHealthDelta *float32 `json:"state_of_health_delta"`
	PercentageDelta    *float32 `json:"percentage_delta"`
	CapacityDelta      *float32 `json:"capacity_delta"`
}

// Transition describes a closed interval being replaced by a new one.
type Transition struct {
	From       BatteryState `json:"from"`
	To         BatteryState `json:"to"`
	At         int64        `json:"at"`
	Percentage float32      `json:"percentage"`
}

// ChangeSet reports what a single ingestion touched.
type ChangeSet struct {
	Timestamp  int64       `json:"timestamp"`
	History    bool        `json:"history"`
	HistoryAt  int64       `json:"history_at,omitempty"`
	Transition *Transition `json:"transition,omitempty"`
	Merged     bool        `json:"merged"`
	Dropped    bool        `json:"dropped"`
}

// Changed reports whether anything a watcher might care about changed.
func (c ChangeSet) Changed() bool {
	return c.History || c.Merged
}

// Reading pairs a battery and system snapshot taken at the same moment.
type Reading struct {
	Battery BatterySnapshot `json:"battery"`
	System  SystemSnapshot  `json:"system"`
}

// Notification represents a structured alert message.
type Notification struct {
	AlertType string            `json:"alert_type"`
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Device    string            `json:"device"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
