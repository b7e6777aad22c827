package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func TestDefaultRetention(t *testing.T) {
	r := DefaultRetention()
	assert.Equal(t, 60*time.Second, r.Raw)
	assert.Equal(t, 24*time.Hour, r.Realtime)
	assert.Equal(t, 30*24*time.Hour, r.OneMinute)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t, 10, WithRetention(RetentionConfig{
		Raw:       60 * time.Second,
		Realtime:  time.Hour,
		OneMinute: 2 * time.Hour,
	}))
	ctx := context.Background()
	now := int64(10_000)

	for _, ts := range []int64{now - 61, now - 60, now} {
		rawSample(t, s.raw, ts, model.StateCharging, 1)
	}
	tier := func(ts ...int64) []model.TierSample {
		var out []model.TierSample
		for _, v := range ts {
			out = append(out, model.TierSample{Timestamp: v, State: model.StateCharging})
		}
		return out
	}
	require.NoError(t, s.writeTier(ctx, "battery_realtime", tier(now-3601, now-3600, now-10), false))
	require.NoError(t, s.writeTier(ctx, "battery_one_minute", tier(now-7260, now-7200, now-60), true))

	require.NoError(t, s.prune(ctx, now))

	assert.Equal(t, 2, countRows(t, s.raw.db, "battery_raw"))

	realtime, err := s.SelectRealtime(ctx, 0, now)
	require.NoError(t, err)
	require.Len(t, realtime, 2)
	assert.Equal(t, now-3600, realtime[0].Timestamp)

	minutes, err := s.SelectOneMinute(ctx, 0, now)
	require.NoError(t, err)
	require.Len(t, minutes, 2)
	assert.Equal(t, now-7200, minutes[0].Timestamp)
}

func TestPrune_LeavesHistory(t *testing.T) {
	s := newTestStore(t, 10, WithRetention(RetentionConfig{Raw: time.Second, Realtime: time.Second, OneMinute: time.Second}))

	mustInsert(t, s, snap(0, model.StateCharging))
	require.NoError(t, s.prune(context.Background(), 1_000_000))
	assert.Len(t, allHistory(t, s), 1)
}

func TestWriteTier_UpsertReplaces(t *testing.T) {
	s := newTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, s.writeTier(ctx, "battery_one_minute", []model.TierSample{{Timestamp: 60, State: model.StateCharging, Percentage: 1}}, true))
	require.NoError(t, s.writeTier(ctx, "battery_one_minute", []model.TierSample{{Timestamp: 60, State: model.StateFull, Percentage: 2}}, true))

	rows, err := s.SelectOneMinute(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StateFull, rows[0].State)
	assert.InDelta(t, 2, rows[0].Percentage, 1e-4)

	// realtime is append-only
	require.NoError(t, s.writeTier(ctx, "battery_realtime", []model.TierSample{{Timestamp: 60, State: model.StateCharging}}, false))
	assert.Error(t, s.writeTier(ctx, "battery_realtime", []model.TierSample{{Timestamp: 60, State: model.StateCharging}}, false))
}
