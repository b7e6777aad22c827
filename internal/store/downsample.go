package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// Bucket label formats. Both render RFC 3339 timestamps so the label can be
// parsed back into the bucket start.
const (
	secondFormat = "%Y-%m-%dT%H:%M:%SZ"
	minuteFormat = "%Y-%m-%dT%H:%M:00Z"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// bucketQuery describes one downsampling pass over a tier table.
type bucketQuery struct {
	table      string
	orderField string // breaks ties between rows sharing a timestamp, highest wins
	start, end int64  // [start, end)
	interval   int64
	format     string
}

// downsample groups the rows of a tier table into fixed-width buckets.
// Numeric columns are averaged; the bucket state is the state of the row
// with the latest timestamp in the bucket.
func downsample(ctx context.Context, q queryer, bq bucketQuery) ([]model.TierSample, error) {
	if bq.interval <= 0 {
		return nil, fmt.Errorf("bucket interval must be positive, got %d", bq.interval)
	}
	if bq.end <= bq.start {
		return nil, nil
	}

	query := fmt.Sprintf(`
		WITH grouped AS (
			SELECT strftime(?, (timestamp / ?) * ?, 'unixepoch') AS bucket,
			       AVG(percentage)        AS percentage,
			       AVG(energy_rate)       AS energy_rate,
			       AVG(voltage)           AS voltage,
			       AVG(cpu_load)          AS cpu_load,
			       AVG(screen_brightness) AS screen_brightness,
			       AVG(state_of_health)   AS state_of_health,
			       MAX(timestamp)         AS last_ts
			FROM %[1]s
			WHERE timestamp >= ? AND timestamp < ?
			GROUP BY bucket
		),
		ranked AS (
			SELECT timestamp, state,
			       ROW_NUMBER() OVER (PARTITION BY timestamp ORDER BY %[2]s DESC) AS rn
			FROM %[1]s
			WHERE timestamp >= ? AND timestamp < ?
		)
		SELECT g.bucket, r.state, g.percentage, g.energy_rate, g.voltage,
		       g.cpu_load, g.screen_brightness, g.state_of_health
		FROM grouped g
		JOIN ranked r ON r.timestamp = g.last_ts AND r.rn = 1
		ORDER BY g.bucket`, bq.table, bq.orderField)

	rows, err := q.QueryContext(ctx, query,
		bq.format, bq.interval, bq.interval, bq.start, bq.end, bq.start, bq.end)
	if err != nil {
		return nil, fmt.Errorf("downsampling %s: %w", bq.table, err)
	}
	defer rows.Close()

	var out []model.TierSample
	for rows.Next() {
		var (
			bucket, state string
			s             model.TierSample
		)
		if err := rows.Scan(&bucket, &state, &s.Percentage, &s.EnergyRate, &s.Voltage,
			&s.CPULoad, &s.ScreenBrightness, &s.StateOfHealth); err != nil {
			return nil, fmt.Errorf("scanning %s bucket: %w", bq.table, err)
		}
		ts, err := time.Parse(time.RFC3339, bucket)
		if err != nil {
			return nil, fmt.Errorf("parsing bucket label %q: %w", bucket, err)
		}
		s.Timestamp = ts.Unix()
		s.State = model.BatteryState(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

// alignDown rounds ts down to a multiple of width.
func alignDown(ts, width int64) int64 {
	r := ts % width
	if r < 0 {
		r += width
	}
	return ts - r
}
