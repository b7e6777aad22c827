package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

type fakeReader struct {
	samples []model.TierSample
	history []model.HistoryRecord
	err     error
	calls   int
}

func (f *fakeReader) SelectOneMinute(_ context.Context, start, end int64) ([]model.TierSample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.TierSample
	for _, s := range f.samples {
		if s.Timestamp >= start && s.Timestamp <= end {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReader) SelectHistoryRange(_ context.Context, start, end int64) ([]model.HistoryRecord, error) {
	var out []model.HistoryRecord
	for _, r := range f.history {
		if r.Timestamp >= start && r.Timestamp < end {
			out = append(out, r)
		}
	}
	return out, nil
}

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func seededReader() *fakeReader {
	base := testDay.Unix()
	prev := model.StateCharging
	end := base + 3600
	return &fakeReader{
		samples: []model.TierSample{
			{Timestamp: base - 60, State: model.StateCharging, Percentage: 10},
			{Timestamp: base, State: model.StateCharging, Percentage: 50, Voltage: 12.1},
			{Timestamp: base + 60, State: model.StateDischarging, Percentage: 49, EnergyRate: 8},
			{Timestamp: base + 86400 - 60, State: model.StateDischarging, Percentage: 30},
			{Timestamp: base + 86400, State: model.StateDischarging, Percentage: 29},
		},
		history: []model.HistoryRecord{
			{Timestamp: base + 10, State: model.StateCharging, EndAt: &end, Percentage: 50},
			{Timestamp: end, State: model.StateDischarging, Prev: &prev, Percentage: 49},
			{Timestamp: base + 86400, State: model.StateFull},
		},
	}
}

func TestExportDay(t *testing.T) {
	dir := t.TempDir()
	a := New(seededReader(), dir, time.Hour)

	res, err := a.ExportDay(context.Background(), testDay.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", res.Day)
	assert.Equal(t, int64(3), res.OneMinute)
	assert.Equal(t, int64(2), res.History)
	assert.False(t, res.Skipped)

	minutes, err := parquet.ReadFile[OneMinuteRow](filepath.Join(dir, "one_minute_20260310.parquet"))
	require.NoError(t, err)
	require.Len(t, minutes, 3)
	assert.Equal(t, testDay.Unix(), minutes[0].Timestamp)
	assert.Equal(t, "Charging", minutes[0].State)
	assert.InDelta(t, 12.1, minutes[0].Voltage, 1e-4)
	assert.Equal(t, "Discharging", minutes[2].State)

	hist, err := parquet.ReadFile[HistoryRow](filepath.Join(dir, "history_20260310.parquet"))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Empty(t, hist[0].Prev)
	assert.Equal(t, testDay.Unix()+3600, hist[0].EndAt)
	assert.Equal(t, "Charging", hist[1].Prev)
	assert.Zero(t, hist[1].EndAt)

	_, err = os.Stat(filepath.Join(dir, "one_minute_20260310.parquet.tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

func TestExportDay_ExistingFilesSkipped(t *testing.T) {
	dir := t.TempDir()
	r := seededReader()
	a := New(r, dir, time.Hour)

	_, err := a.ExportDay(context.Background(), testDay)
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "one_minute_20260310.parquet"))
	require.NoError(t, err)

	res, err := a.ExportDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, r.calls, "nothing is read when both files exist")

	again, err := os.Stat(filepath.Join(dir, "one_minute_20260310.parquet"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestExportDay_EmptyDayWritesNothing(t *testing.T) {
	dir := t.TempDir()
	a := New(&fakeReader{}, dir, time.Hour)

	res, err := a.ExportDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Zero(t, res.OneMinute)
	assert.Zero(t, res.History)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportDay_ReadError(t *testing.T) {
	a := New(&fakeReader{err: errors.New("database is locked")}, t.TempDir(), time.Hour)
	_, err := a.ExportDay(context.Background(), testDay)
	assert.ErrorContains(t, err, "reading one-minute tier")
}

func TestRun_ExportsPreviousDayAndStops(t *testing.T) {
	dir := t.TempDir()
	a := New(seededReader(), dir, time.Hour)
	a.now = func() time.Time { return testDay.Add(26 * time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "history_20260310.parquet"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestWriter_ClosedRejectsWrites(t *testing.T) {
	w, err := newWriter[OneMinuteRow](filepath.Join(t.TempDir(), "x.parquet"))
	require.NoError(t, err)
	require.NoError(t, w.Write([]OneMinuteRow{{Timestamp: 1}}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write([]OneMinuteRow{{Timestamp: 2}}), ErrWriterClosed)
	assert.Equal(t, int64(1), w.RowCount())
}

func TestWriter_AbortRemovesTemp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "y.parquet")
	w, err := newWriter[HistoryRow](path)
	require.NoError(t, err)
	w.Abort()

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
