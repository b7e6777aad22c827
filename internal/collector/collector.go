// Package collector reads battery and system snapshots and feeds them to the
// telemetry store.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// Collector is the interface for all periodic collectors.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// Source reads snapshots from a device. Timestamps are filled in by the
// caller.
type Source interface {
	Name() string
	ReadBattery(ctx context.Context) (model.BatterySnapshot, error)
	ReadSystem(ctx context.Context) (model.SystemSnapshot, error)
}

// WorkerPool bounds concurrent reads against a source.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a worker pool with the given max concurrent workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Submit runs fn in the pool, blocking if all workers are busy.
// Returns ctx.Err() if context is cancelled while waiting.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run calls Collect once at startup and then on every interval until ctx is
// cancelled. A failure is logged at error level when it starts a streak;
// repeats are logged at debug until a collection succeeds again.
func Run(ctx context.Context, c Collector) error {
	name := c.Name()
	slog.Info("collector started", "name", name, "interval", c.Interval())

	failing := 0
	collect := func() {
		err := c.Collect(ctx)
		switch {
		case err == nil && failing > 0:
			slog.Info("collector recovered", "collector", name, "failed_cycles", failing)
			failing = 0
		case err == nil:
		case ctx.Err() != nil:
		case failing == 0:
			failing++
			slog.Error("collection failed", "collector", name, "error", err)
		default:
			failing++
			slog.Debug("collection still failing", "collector", name, "cycles", failing, "error", err)
		}
	}

	collect()

	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			collect()
		}
	}
}

// ReadError names the part of a reading that failed.
type ReadError struct {
	Source string
	Part   string // "battery" or "system"
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s from %s: %v", e.Part, e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
