package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// rawTier is the in-memory table that receives every sample. It holds a
// single connection, since every connection to ":memory:" is a separate
// database.
type rawTier struct {
	db *sql.DB
}

func openRawTier() (*rawTier, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening raw tier: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(rawSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating raw tier schema: %w", err)
	}
	return &rawTier{db: db}, nil
}

// insert appends a sample. A failure caused by the table being gone is
// reported as ErrSchemaMissing.
func (r *rawTier) insert(ctx context.Context, b model.BatterySnapshot, sys model.SystemSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO battery_raw
		(timestamp, state, percentage, energy_rate, voltage, cpu_load, screen_brightness, state_of_health)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Timestamp, string(b.State), b.Percentage, b.EnergyRate, b.Voltage,
		sys.CPULoad, sys.ScreenBrightness, b.StateOfHealth,
	)
	if err == nil {
		return nil
	}

	exists, lookupErr := r.tableExists(ctx, "battery_raw")
	if lookupErr == nil && !exists {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return fmt.Errorf("inserting raw sample: %w", err)
}

func (r *rawTier) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

// reset discards the in-memory database and starts over with an empty one.
func (r *rawTier) reset() error {
	fresh, err := openRawTier()
	if err != nil {
		return err
	}
	r.db.Close()
	r.db = fresh.db
	return nil
}

func (r *rawTier) close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing raw tier: %w", err)
	}
	return nil
}
