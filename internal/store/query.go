package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// SelectHistoryPage returns up to size history records with
// start <= timestamp <= end and timestamp < cursor, newest first. A nil
// cursor means end. Pass the timestamp of the last returned record as the
// next cursor to continue.
//
// Deltas are taken against the chronologically previous record in
// [start, end], so they do not depend on where a page boundary falls.
// A zero size or an inverted range yields an empty page.
func (s *Store) SelectHistoryPage(ctx context.Context, cursor *int64, size uint8, start, end int64) ([]model.HistoryInfo, error) {
	if size == 0 || start > end {
		return []model.HistoryInfo{}, nil
	}
	before := end
	if cursor != nil {
		before = *cursor
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`, prev_timestamp, prev_state_of_health, prev_percentage, prev_capacity
		FROM (
			SELECT *,
			       LAG(timestamp)       OVER w AS prev_timestamp,
			       LAG(state_of_health) OVER w AS prev_state_of_health,
			       LAG(percentage)      OVER w AS prev_percentage,
			       LAG(capacity)        OVER w AS prev_capacity
			FROM battery_history
			WHERE timestamp >= ? AND timestamp <= ?
			WINDOW w AS (ORDER BY timestamp)
		)
		WHERE timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, start, end, before, int(size))
	if err != nil {
		return nil, fmt.Errorf("querying history page: %w", err)
	}
	defer rows.Close()

	page := []model.HistoryInfo{}
	for rows.Next() {
		var (
			prevTS                    sql.NullInt64
			prevSOH, prevPct, prevCap sql.NullFloat64
		)
		rec, err := scanHistory(rows, &prevTS, &prevSOH, &prevPct, &prevCap)
		if err != nil {
			return nil, fmt.Errorf("scanning history page: %w", err)
		}

		info := model.HistoryInfo{HistoryRecord: rec}
		if prevTS.Valid {
			d := rec.Timestamp - prevTS.Int64
			info.TimestampDelta = &d
		}
		info.StateOfHealthDelta = delta(rec.StateOfHealth, prevSOH)
		info.PercentageDelta = delta(rec.Percentage, prevPct)
		info.CapacityDelta = delta(rec.Capacity, prevCap)
		page = append(page, info)
	}
	return page, rows.Err()
}

func delta(cur float32, prev sql.NullFloat64) *float32 {
	if !prev.Valid {
		return nil
	}
	d := cur - float32(prev.Float64)
	return &d
}
