package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RetentionConfig defines how long to keep data in each tier.
type RetentionConfig struct {
	Raw       time.Duration // default 60s
	Realtime  time.Duration // default 24h
	OneMinute time.Duration // default 30d
}

// DefaultRetention returns the default retention periods.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		Raw:       60 * time.Second,
		Realtime:  24 * time.Hour,
		OneMinute: 30 * 24 * time.Hour,
	}
}

// prune deletes every tier row older than its horizon relative to now.
// History is never pruned here.
func (s *Store) prune(ctx context.Context, now int64) error {
	tables := []struct {
		tier      string
		db        *sql.DB
		table     string
		retention time.Duration
	}{
		{"raw", s.raw.db, "battery_raw", s.retention.Raw},
		{"realtime", s.db, "battery_realtime", s.retention.Realtime},
		{"one_minute", s.db, "battery_one_minute", s.retention.OneMinute},
	}

	for _, t := range tables {
		cutoff := now - int64(t.retention.Seconds())
		result, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", t.table), cutoff)
		if err != nil {
			return &TierError{Tier: t.tier, Op: "prune", Err: err}
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			s.log.Debug("pruned old data", "table", t.table, "rows", rows, "cutoff", cutoff)
		}
	}
	return nil
}
