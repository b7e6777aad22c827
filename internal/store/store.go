// Package store provides tiered SQLite persistence for battery telemetry.
//
// Samples land in an in-memory raw tier and are periodically downsampled into
// a durable realtime tier (2s buckets) and a one-minute tier. Battery state
// intervals are tracked alongside in battery_history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
	_ "modernc.org/sqlite"
)

var (
	// ErrSchemaMissing is returned by the raw tier when its table has
	// disappeared from the in-memory database.
	ErrSchemaMissing = errors.New("raw tier schema missing")

	// ErrClosed is returned by Insert after Close.
	ErrClosed = errors.New("store closed")
)

// TierError names the tier and operation that failed.
type TierError struct {
	Tier string
	Op   string
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s tier %s: %v", e.Tier, e.Op, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the default retention horizons.
func WithRetention(r RetentionConfig) Option {
	return func(s *Store) { s.retention = r }
}

// WithRealtimeBucket sets the realtime tier bucket width in seconds.
func WithRealtimeBucket(secs int64) Option {
	return func(s *Store) {
		if secs > 0 {
			s.realtimeWidth = secs
		}
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store owns the raw, realtime, one-minute and history tables.
//
// Insert is serialised through a single writer slot; reads go straight to
// the durable database.
type Store struct {
	db  *sql.DB
	raw *rawTier
	log *slog.Logger

	interval      int64
	realtimeWidth int64
	retention     RetentionConfig

	// sem is the writer slot. Everything below it is only touched while
	// holding the slot.
	sem           chan struct{}
	closed        bool
	started       bool
	lastMergeAt   int64
	mergedThrough int64 // realtime tier is complete before this
	mergedMinute  int64 // one-minute tier is complete before this
	tracker       tracker
}

// Open opens or creates the durable database at dbPath and a fresh
// in-memory raw tier. intervalSecs is the merge cadence and must be between
// 1 and 60 seconds.
func Open(dbPath string, intervalSecs int64, opts ...Option) (*Store, error) {
	if intervalSecs < 1 || intervalSecs > 60 {
		return nil, fmt.Errorf("interval_secs must be between 1 and 60, got %d", intervalSecs)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, ?)`,
		schemaVersion, time.Now().Unix()); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording schema version: %w", err)
	}

	raw, err := openRawTier()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:            db,
		raw:           raw,
		log:           slog.Default(),
		interval:      intervalSecs,
		realtimeWidth: 2,
		retention:     DefaultRetention(),
		sem:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadTracker(context.Background()); err != nil {
		s.raw.close()
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close waits for any in-flight Insert and closes both databases.
func (s *Store) Close() error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	if s.closed {
		return nil
	}
	s.closed = true

	rawErr := s.raw.close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return rawErr
}

// SchemaVersion returns the highest schema version recorded in the durable
// database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&v); err != nil {
		return 0, fmt.Errorf("querying schema version: %w", err)
	}
	return v, nil
}

// Insert ingests one battery/system snapshot pair.
//
// Only one Insert runs at a time. If ctx ends while waiting for the writer
// slot the sample is not ingested. If ctx ends after ingestion started,
// Insert returns ctx.Err() but the ingestion still runs to completion.
func (s *Store) Insert(ctx context.Context, battery model.BatterySnapshot, system model.SystemSnapshot) (model.ChangeSet, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return model.ChangeSet{}, ctx.Err()
	}

	type result struct {
		cs  model.ChangeSet
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-s.sem }()
		cs, err := s.ingest(context.WithoutCancel(ctx), battery, system)
		done <- result{cs, err}
	}()

	select {
	case r := <-done:
		return r.cs, r.err
	case <-ctx.Done():
		return model.ChangeSet{}, ctx.Err()
	}
}

// ingest runs one ingestion cycle. Callers must hold the writer slot.
func (s *Store) ingest(ctx context.Context, battery model.BatterySnapshot, system model.SystemSnapshot) (model.ChangeSet, error) {
	if s.closed {
		return model.ChangeSet{}, ErrClosed
	}

	now := battery.Timestamp
	cs := model.ChangeSet{Timestamp: now}

	if err := s.raw.insert(ctx, battery, system); err != nil {
		if !errors.Is(err, ErrSchemaMissing) {
			return cs, &TierError{Tier: "raw", Op: "insert", Err: err}
		}
		s.log.Warn("raw tier lost its schema, recreating", "timestamp", now)
		if err := s.raw.reset(); err != nil {
			return cs, &TierError{Tier: "raw", Op: "reset", Err: err}
		}
		cs.Dropped = true
		return cs, nil
	}

	if !s.started {
		s.started = true
		s.lastMergeAt = now
		if err := s.initMergedThrough(ctx, now); err != nil {
			return cs, err
		}
	}

	if err := s.observe(ctx, battery, system, &cs); err != nil {
		return cs, err
	}

	if now <= s.lastMergeAt+s.interval {
		return cs, nil
	}

	// Merge before pruning so rows are folded into the next tier before
	// their retention horizon removes them.
	if err := s.mergeRealtime(ctx, now); err != nil {
		return cs, err
	}
	if err := s.mergeOneMinute(ctx, now); err != nil {
		return cs, err
	}
	if err := s.prune(ctx, now); err != nil {
		return cs, err
	}
	if err := s.refresh(ctx, battery, &cs); err != nil {
		return cs, err
	}
	s.lastMergeAt = now
	cs.Merged = true

	return cs, nil
}
