package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func newTestRawTier(t testing.TB) *rawTier {
	t.Helper()
	r, err := openRawTier()
	require.NoError(t, err)
	t.Cleanup(func() { r.close() })
	return r
}

func rawSample(t testing.TB, r *rawTier, ts int64, state model.BatteryState, pct float32) {
	t.Helper()
	b := model.BatterySnapshot{Timestamp: ts, State: state, Percentage: pct, EnergyRate: pct * 2, Voltage: 12, StateOfHealth: 90}
	require.NoError(t, r.insert(context.Background(), b, model.SystemSnapshot{CPULoad: pct / 10, ScreenBrightness: 50}))
}

func TestDownsample(t *testing.T) {
	r := newTestRawTier(t)
	rawSample(t, r, 100, model.StateCharging, 10)
	rawSample(t, r, 101, model.StateCharging, 20)
	rawSample(t, r, 101, model.StateDischarging, 30) // same timestamp, later id wins
	rawSample(t, r, 102, model.StateFull, 40)
	rawSample(t, r, 105, model.StateEmpty, 50)
	rawSample(t, r, 110, model.StateCharging, 60) // outside [100, 110)

	got, err := downsample(context.Background(), r.db, bucketQuery{
		table:      "battery_raw",
		orderField: "id",
		start:      100,
		end:        110,
		interval:   2,
		format:     secondFormat,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, model.StateDischarging, got[0].State)
	assert.InDelta(t, 20, got[0].Percentage, 1e-4)
	assert.InDelta(t, 40, got[0].EnergyRate, 1e-4)
	assert.InDelta(t, 2, got[0].CPULoad, 1e-4)
	assert.InDelta(t, 90, got[0].StateOfHealth, 1e-4)

	assert.Equal(t, int64(102), got[1].Timestamp)
	assert.Equal(t, model.StateFull, got[1].State)
	assert.InDelta(t, 40, got[1].Percentage, 1e-4)

	assert.Equal(t, int64(104), got[2].Timestamp)
	assert.Equal(t, model.StateEmpty, got[2].State)
	assert.InDelta(t, 50, got[2].Percentage, 1e-4)
}

func TestDownsample_StateIsLastInBucket(t *testing.T) {
	r := newTestRawTier(t)
	rawSample(t, r, 63, model.StateDischarging, 10)
	rawSample(t, r, 61, model.StateCharging, 20) // inserted later but older
	rawSample(t, r, 130, model.StateFull, 30)

	got, err := downsample(context.Background(), r.db, bucketQuery{
		table:      "battery_raw",
		orderField: "id",
		start:      60,
		end:        180,
		interval:   60,
		format:     minuteFormat,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(60), got[0].Timestamp)
	assert.Equal(t, model.StateDischarging, got[0].State)
	assert.InDelta(t, 15, got[0].Percentage, 1e-4)
	assert.Equal(t, int64(120), got[1].Timestamp)
	assert.Equal(t, model.StateFull, got[1].State)
}

func TestDownsample_EmptyWindow(t *testing.T) {
	r := newTestRawTier(t)
	rawSample(t, r, 100, model.StateCharging, 10)

	got, err := downsample(context.Background(), r.db, bucketQuery{
		table: "battery_raw", orderField: "id", start: 200, end: 300, interval: 2, format: secondFormat,
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = downsample(context.Background(), r.db, bucketQuery{
		table: "battery_raw", orderField: "id", start: 100, end: 100, interval: 2, format: secondFormat,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDownsample_InvalidInterval(t *testing.T) {
	r := newTestRawTier(t)
	_, err := downsample(context.Background(), r.db, bucketQuery{
		table: "battery_raw", orderField: "id", start: 0, end: 10, interval: 0, format: secondFormat,
	})
	assert.Error(t, err)
}

func TestAlignDown(t *testing.T) {
	tests := []struct {
		ts, width, want int64
	}{
		{0, 2, 0},
		{1, 2, 0},
		{131, 2, 130},
		{179, 60, 120},
		{180, 60, 180},
		{-1, 60, -60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignDown(tt.ts, tt.width), "alignDown(%d, %d)", tt.ts, tt.width)
	}
}

func TestRawTier_SchemaMissing(t *testing.T) {
	r := newTestRawTier(t)
	_, err := r.db.Exec("DROP TABLE battery_raw")
	require.NoError(t, err)

	err = r.insert(context.Background(), model.BatterySnapshot{Timestamp: 1, State: model.StateFull}, model.SystemSnapshot{})
	assert.ErrorIs(t, err, ErrSchemaMissing)

	require.NoError(t, r.reset())
	err = r.insert(context.Background(), model.BatterySnapshot{Timestamp: 1, State: model.StateFull}, model.SystemSnapshot{})
	assert.NoError(t, err)
}
