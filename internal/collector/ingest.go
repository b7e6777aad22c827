package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/topabomb/BatteryMaster/internal/cache"
	"github.com/topabomb/BatteryMaster/internal/model"
)

// Inserter is the write side of the telemetry store.
type Inserter interface {
	Insert(ctx context.Context, battery model.BatterySnapshot, system model.SystemSnapshot) (model.ChangeSet, error)
}

// Sink is told about every ingested reading.
type Sink func(model.Reading, model.ChangeSet)

// Ingestor reads a snapshot pair from a Source on every tick and hands it to
// the store.
type Ingestor struct {
	source   Source
	store    Inserter
	pool     *WorkerPool
	cache    *cache.Cache
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sinks    []Sink

	lastState model.BatteryState
}

// NewIngestor creates an ingestor sampling src every interval.
func NewIngestor(src Source, store Inserter, c *cache.Cache, pool *WorkerPool, interval time.Duration) *Ingestor {
	return &Ingestor{
		source:   src,
		store:    store,
		pool:     pool,
		cache:    c,
		interval: interval,
		timeout:  5 * time.Second,
		now:      time.Now,
	}
}

// AddSink registers a consumer of ingested readings. Sinks are called
// synchronously from Collect and must not block.
func (i *Ingestor) AddSink(s Sink) {
	i.sinks = append(i.sinks, s)
}

func (i *Ingestor) Name() string            { return "ingest:" + i.source.Name() }
func (i *Ingestor) Interval() time.Duration { return i.interval }

// Collect reads one snapshot pair and inserts it.
func (i *Ingestor) Collect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	r, err := i.read(ctx)
	if err != nil {
		i.cache.RecordError(err)
		return err
	}

	last := i.lastState
	r.Battery.StateChanged = last != "" && last != model.StateUnknown && r.Battery.State != last
	i.lastState = r.Battery.State

	cs, err := i.store.Insert(ctx, r.Battery, r.System)
	if err != nil {
		i.cache.RecordError(err)
		return fmt.Errorf("inserting reading: %w", err)
	}
	if cs.Dropped {
		slog.Warn("sample dropped by store", "timestamp", r.Battery.Timestamp)
	}

	i.cache.Update(r, cs)
	for _, s := range i.sinks {
		s(r, cs)
	}
	return nil
}

// read fetches battery and system snapshots concurrently.
func (i *Ingestor) read(ctx context.Context) (model.Reading, error) {
	var (
		r              model.Reading
		batErr, sysErr error
		wg             sync.WaitGroup
	)
	ts := i.now().Unix()

	wg.Add(2)
	if err := i.pool.Submit(ctx, func() {
		defer wg.Done()
		r.Battery, batErr = i.source.ReadBattery(ctx)
	}); err != nil {
		return r, err
	}
	if err := i.pool.Submit(ctx, func() {
		defer wg.Done()
		r.System, sysErr = i.source.ReadSystem(ctx)
	}); err != nil {
		wg.Done()
		wg.Wait()
		return r, err
	}
	wg.Wait()

	r.Battery.Timestamp = ts
	return r, errors.Join(batErr, sysErr)
}
