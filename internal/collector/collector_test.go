package collector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/cache"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func TestWorkerPool_BoundsConcurrentReads(t *testing.T) {
	pool := NewWorkerPool(2)
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for range 6 {
		wg.Add(1)
		require.NoError(t, pool.Submit(context.Background(), func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func() {}), context.DeadlineExceeded)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, pool.Submit(cancelled, func() {}), context.Canceled)
}

func TestRun_SamplesOnStartupAndEachTick(t *testing.T) {
	src := &fakeSource{states: []model.BatteryState{model.StateDischarging}, percent: 55}
	st := &fakeStore{}
	ing := NewIngestor(src, st, cache.New(), NewWorkerPool(1), 40*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Run(ctx, ing), context.DeadlineExceeded)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.GreaterOrEqual(t, len(st.got), 3, "startup sample plus at least two ticks")
	assert.Equal(t, model.StateDischarging, st.got[0].State)
	assert.Positive(t, st.got[0].Timestamp)
}

func TestRun_SurvivesSourceErrors(t *testing.T) {
	src := &fakeSource{batErr: errors.New("no such device")}
	c := cache.New()
	ing := NewIngestor(src, &fakeStore{}, c, NewWorkerPool(1), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Run(ctx, ing), context.DeadlineExceeded)

	snap := c.Snapshot()
	assert.GreaterOrEqual(t, snap.Failures, int64(2))
	assert.Contains(t, snap.LastError, "no such device")
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := &fakeStore{}
	ing := NewIngestor(&fakeSource{states: []model.BatteryState{model.StateFull}}, st, cache.New(), NewWorkerPool(1), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, ing) }()

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.got) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestReadError(t *testing.T) {
	inner := errors.New("permission denied")
	re := &ReadError{Source: "sysfs:BAT0", Part: "battery", Err: inner}
	assert.Equal(t, "reading battery from sysfs:BAT0: permission denied", re.Error())
	assert.ErrorIs(t, re, inner)
}

// flakySource fails battery reads until healed is set.
type flakySource struct {
	fakeSource
	healed atomic.Bool
}

func (f *flakySource) ReadBattery(ctx context.Context) (model.BatterySnapshot, error) {
	if !f.healed.Load() {
		return model.BatterySnapshot{}, errors.New("battery removed")
	}
	return f.fakeSource.ReadBattery(ctx)
}

func TestRun_LogsFailureStreakOnce(t *testing.T) {
	var buf safeBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	src := &flakySource{fakeSource: fakeSource{states: []model.BatteryState{model.StateCharging}}}
	st := &fakeStore{}
	ing := NewIngestor(src, st, cache.New(), NewWorkerPool(1), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, ing) }()

	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "collection still failing") }, time.Second, 5*time.Millisecond)
	src.healed.Store(true)
	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "collector recovered") }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, strings.Count(buf.String(), "collection failed"))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
