package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// initMergedThrough picks where the first raw→realtime window of this
// session begins. Buckets already present in the realtime tier from an
// earlier session are skipped so appends never collide. The one-minute
// watermark starts one minute before the first sample so the minute the
// session starts in is refolded from whatever realtime rows it already has.
func (s *Store) initMergedThrough(ctx context.Context, first int64) error {
	s.mergedThrough = alignDown(first, s.realtimeWidth)
	s.mergedMinute = alignDown(first, 60) - 60

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM battery_realtime`).Scan(&last); err != nil {
		return &TierError{Tier: "realtime", Op: "load", Err: err}
	}
	if last.Valid && last.Int64 >= s.mergedThrough {
		s.mergedThrough = alignDown(last.Int64, s.realtimeWidth) + s.realtimeWidth
	}
	return nil
}

// mergeRealtime appends raw buckets that have fully elapsed since the last
// merge to the realtime tier.
func (s *Store) mergeRealtime(ctx context.Context, now int64) error {
	end := alignDown(now, s.realtimeWidth)
	if end <= s.mergedThrough {
		return nil
	}

	buckets, err := downsample(ctx, s.raw.db, bucketQuery{
		table:      "battery_raw",
		orderField: "id",
		start:      s.mergedThrough,
		end:        end,
		interval:   s.realtimeWidth,
		format:     secondFormat,
	})
	if err != nil {
		return &TierError{Tier: "raw", Op: "downsample", Err: err}
	}

	if err := s.writeTier(ctx, "battery_realtime", buckets, false); err != nil {
		return &TierError{Tier: "realtime", Op: "merge", Err: err}
	}
	s.mergedThrough = end
	s.log.Debug("merged raw into realtime", "buckets", len(buckets), "through", end)
	return nil
}

// mergeOneMinute folds every complete calendar minute of the realtime tier
// since the last fold into the one-minute tier. Refolding a minute
// overwrites the earlier result.
func (s *Store) mergeOneMinute(ctx context.Context, now int64) error {
	current := alignDown(now, 60)
	if current <= s.mergedMinute {
		return nil
	}

	buckets, err := downsample(ctx, s.db, bucketQuery{
		table:      "battery_realtime",
		orderField: "timestamp",
		start:      s.mergedMinute,
		end:        current,
		interval:   60,
		format:     minuteFormat,
	})
	if err != nil {
		return &TierError{Tier: "realtime", Op: "downsample", Err: err}
	}

	if err := s.writeTier(ctx, "battery_one_minute", buckets, true); err != nil {
		return &TierError{Tier: "one_minute", Op: "merge", Err: err}
	}
	s.mergedMinute = current
	return nil
}

func (s *Store) writeTier(ctx context.Context, table string, rows []model.TierSample, upsert bool) error {
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(timestamp, state, percentage, energy_rate, voltage, cpu_load, screen_brightness, state_of_health)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table)
	if upsert {
		query += `
		ON CONFLICT(timestamp) DO UPDATE SET
			state = excluded.state,
			percentage = excluded.percentage,
			energy_rate = excluded.energy_rate,
			voltage = excluded.voltage,
			cpu_load = excluded.cpu_load,
			screen_brightness = excluded.screen_brightness,
			state_of_health = excluded.state_of_health`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Timestamp, string(r.State), r.Percentage, r.EnergyRate,
			r.Voltage, r.CPULoad, r.ScreenBrightness, r.StateOfHealth); err != nil {
			return fmt.Errorf("inserting into %s at %d: %w", table, r.Timestamp, err)
		}
	}
	return tx.Commit()
}

// SelectRealtime returns realtime tier rows with start <= timestamp <= end,
// oldest first.
func (s *Store) SelectRealtime(ctx context.Context, start, end int64) ([]model.TierSample, error) {
	return s.selectTier(ctx, "battery_realtime", start, end)
}

// SelectOneMinute returns one-minute tier rows with start <= timestamp <= end,
// oldest first.
func (s *Store) SelectOneMinute(ctx context.Context, start, end int64) ([]model.TierSample, error) {
	return s.selectTier(ctx, "battery_one_minute", start, end)
}

func (s *Store) selectTier(ctx context.Context, table string, start, end int64) ([]model.TierSample, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT timestamp, state, percentage, energy_rate, voltage, cpu_load, screen_brightness, state_of_health
		FROM %s
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, table), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.TierSample
	for rows.Next() {
		var (
			r     model.TierSample
			state string
		)
		if err := rows.Scan(&r.Timestamp, &state, &r.Percentage, &r.EnergyRate, &r.Voltage,
			&r.CPULoad, &r.ScreenBrightness, &r.StateOfHealth); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		r.State = model.BatteryState(state)
		out = append(out, r)
	}
	return out, rows.Err()
}
