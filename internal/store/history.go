package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// rollingWindow caps how far back the rolling statistics of an interval look.
const rollingWindow = 7 * 24 * 60 * 60

// tracker is the in-memory side of the history state machine.
type tracker struct {
	last      model.BatteryState // state of the previous snapshot
	hasOpen   bool
	openAt    int64
	openState model.BatteryState
}

// transition reports whether b starts a new interval. A reading counts when
// it differs from the open interval and either the reader flagged the change
// or the previous reading was a known state. Entering Unknown is a
// transition; leaving it needs one more known reading.
func (t *tracker) transition(b model.BatterySnapshot) bool {
	if !t.hasOpen || b.State == t.openState {
		return false
	}
	return b.StateChanged || t.last != model.StateUnknown
}

// loadTracker restores the open interval from the durable database.
func (s *Store) loadTracker(ctx context.Context) error {
	open, err := s.OpenHistory(ctx)
	if err != nil {
		return err
	}
	s.tracker = tracker{last: model.StateUnknown}
	if open != nil {
		s.tracker.hasOpen = true
		s.tracker.openAt = open.Timestamp
		s.tracker.openState = open.State
		s.tracker.last = open.State
	}
	return nil
}

// observe runs the history state machine for one snapshot.
func (s *Store) observe(ctx context.Context, b model.BatterySnapshot, sys model.SystemSnapshot, cs *model.ChangeSet) error {
	defer func() { s.tracker.last = b.State }()

	if !s.tracker.hasOpen {
		prev, err := s.latestState(ctx)
		if err != nil {
			return err
		}
		if err := s.openInterval(ctx, b, sys, prev); err != nil {
			return err
		}
		if prev == nil {
			s.log.Info("seeded battery history", "state", b.State, "timestamp", b.Timestamp)
		}
		cs.History = true
		cs.HistoryAt = b.Timestamp
		return nil
	}

	if b.Timestamp < s.tracker.openAt {
		s.log.Debug("snapshot older than open interval, skipping history", "timestamp", b.Timestamp, "open_at", s.tracker.openAt)
		return nil
	}
	if !s.tracker.transition(b) {
		return nil
	}

	from := s.tracker.openState
	closed, err := s.closeOpen(ctx, b)
	if err != nil {
		return err
	}
	var prev *model.BatteryState
	if closed != nil {
		prev = &closed.State
	}
	if err := s.openInterval(ctx, b, sys, prev); err != nil {
		return err
	}

	s.log.Info("battery state changed", "from", from, "to", b.State, "timestamp", b.Timestamp)
	cs.History = true
	cs.HistoryAt = b.Timestamp
	cs.Transition = &model.Transition{From: from, To: b.State, At: b.Timestamp, Percentage: b.Percentage}
	return nil
}

// refresh recomputes the rolling statistics of the open interval.
func (s *Store) refresh(ctx context.Context, b model.BatterySnapshot, cs *model.ChangeSet) error {
	open, err := s.findOpen(ctx, b.Timestamp+1)
	if err != nil || open == nil {
		return err
	}
	if err := s.updateRolling(ctx, open, b, false); err != nil {
		return err
	}
	cs.History = true
	if cs.HistoryAt == 0 {
		cs.HistoryAt = open.Timestamp
	}
	return nil
}

// closeOpen finalises the open interval at b.Timestamp and returns it. It
// returns nil if no interval strictly before b.Timestamp is open.
func (s *Store) closeOpen(ctx context.Context, b model.BatterySnapshot) (*model.HistoryRecord, error) {
	open, err := s.findOpen(ctx, b.Timestamp)
	if err != nil || open == nil {
		return nil, err
	}
	if err := s.updateRolling(ctx, open, b, true); err != nil {
		return nil, err
	}
	return open, nil
}

// findOpen returns the newest open record with timestamp < before.
func (s *Store) findOpen(ctx context.Context, before int64) (*model.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM battery_history
		WHERE end_at IS NULL AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1`, before)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &TierError{Tier: "history", Op: "find open", Err: err}
	}
	return &rec, nil
}

// rollingAggregate picks the aggregate for a state: peaks while charging or
// full, troughs while discharging, the mean otherwise.
func rollingAggregate(state model.BatteryState) string {
	switch state {
	case model.StateCharging, model.StateFull:
		return "MAX"
	case model.StateDischarging:
		return "MIN"
	default:
		return "AVG"
	}
}

// updateRolling refreshes rec's rolling statistics from the one-minute tier
// and its instantaneous fields from b. When closing, end_at is set to
// b.Timestamp. Statistics are left untouched if no one-minute rows cover the
// interval yet.
func (s *Store) updateRolling(ctx context.Context, rec *model.HistoryRecord, b model.BatterySnapshot, closing bool) error {
	now := b.Timestamp
	from := max(rec.Timestamp, now-rollingWindow)

	agg := rollingAggregate(rec.State)
	var soh, rate, volt, cpu, bright sql.NullFloat64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %[1]s(state_of_health), %[1]s(energy_rate), %[1]s(voltage), %[1]s(cpu_load), %[1]s(screen_brightness)
		FROM battery_one_minute
		WHERE timestamp BETWEEN ? AND ?`, agg), from, now).Scan(&soh, &rate, &volt, &cpu, &bright)
	if err != nil {
		return &TierError{Tier: "one_minute", Op: "rolling stats", Err: err}
	}

	var endAt any
	if closing {
		endAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE battery_history SET
			state_of_health   = COALESCE(?, state_of_health),
			energy_rate       = COALESCE(?, energy_rate),
			voltage           = COALESCE(?, voltage),
			cpu_load          = COALESCE(?, cpu_load),
			screen_brightness = COALESCE(?, screen_brightness),
			percentage        = ?,
			capacity          = ?,
			full_capacity     = ?,
			design_capacity   = ?,
			end_at            = COALESCE(?, end_at)
		WHERE timestamp = ?`,
		soh, rate, volt, cpu, bright,
		b.Percentage, b.Capacity, b.FullCapacity, b.DesignCapacity,
		endAt, rec.Timestamp,
	)
	if err != nil {
		return &TierError{Tier: "history", Op: "update", Err: err}
	}

	if closing {
		s.tracker.hasOpen = false
	}
	return nil
}

// openInterval inserts a new open record at b.Timestamp. If a record with the
// same timestamp exists it is reopened in place with b's values.
func (s *Store) openInterval(ctx context.Context, b model.BatterySnapshot, sys model.SystemSnapshot, prev *model.BatteryState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO battery_history
		(timestamp, state, prev, end_at, capacity, full_capacity, design_capacity, percentage,
		 state_of_health, energy_rate, voltage, cpu_load, screen_brightness)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO UPDATE SET
			state = excluded.state,
			end_at = NULL,
			capacity = excluded.capacity,
			full_capacity = excluded.full_capacity,
			design_capacity = excluded.design_capacity,
			percentage = excluded.percentage,
			state_of_health = excluded.state_of_health,
			energy_rate = excluded.energy_rate,
			voltage = excluded.voltage,
			cpu_load = excluded.cpu_load,
			screen_brightness = excluded.screen_brightness`,
		b.Timestamp, string(b.State), nullState(prev),
		b.Capacity, b.FullCapacity, b.DesignCapacity, b.Percentage,
		b.StateOfHealth, b.EnergyRate, b.Voltage, sys.CPULoad, sys.ScreenBrightness,
	)
	if err != nil {
		return &TierError{Tier: "history", Op: "insert", Err: err}
	}

	s.tracker.hasOpen = true
	s.tracker.openAt = b.Timestamp
	s.tracker.openState = b.State
	return nil
}

// latestState returns the state of the newest history record, if any.
func (s *Store) latestState(ctx context.Context) (*model.BatteryState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM battery_history ORDER BY timestamp DESC LIMIT 1`).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &TierError{Tier: "history", Op: "latest", Err: err}
	}
	st := model.BatteryState(state)
	return &st, nil
}

// OpenHistory returns the currently open history record, or nil if there is
// none.
func (s *Store) OpenHistory(ctx context.Context) (*model.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM battery_history
		WHERE end_at IS NULL
		ORDER BY timestamp DESC
		LIMIT 1`)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying open history: %w", err)
	}
	return &rec, nil
}

// SelectHistoryRange returns history records that started within
// [start, end), oldest first.
func (s *Store) SelectHistoryRange(ctx context.Context, start, end int64) ([]model.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM battery_history
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying history range: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const historyColumns = `timestamp, state, prev, end_at, capacity, full_capacity, design_capacity,
	percentage, state_of_health, energy_rate, voltage, cpu_load, screen_brightness`

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(sc scanner, extra ...any) (model.HistoryRecord, error) {
	var (
		rec   model.HistoryRecord
		state string
		prev  sql.NullString
		endAt sql.NullInt64
	)
	dest := []any{&rec.Timestamp, &state, &prev, &endAt, &rec.Capacity, &rec.FullCapacity,
		&rec.DesignCapacity, &rec.Percentage, &rec.StateOfHealth, &rec.EnergyRate,
		&rec.Voltage, &rec.CPULoad, &rec.ScreenBrightness}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return rec, err
	}
	rec.State = model.BatteryState(state)
	if prev.Valid {
		p := model.BatteryState(prev.String)
		rec.Prev = &p
	}
	if endAt.Valid {
		e := endAt.Int64
		rec.EndAt = &e
	}
	return rec, nil
}

func nullState(s *model.BatteryState) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
