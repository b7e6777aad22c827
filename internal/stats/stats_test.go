package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func rows(n int) []model.TierSample {
	out := make([]model.TierSample, n)
	for i := range out {
		v := float32(i + 1)
		st := model.StateDischarging
		if i%4 == 0 {
			st = model.StateCharging
		}
		out[i] = model.TierSample{
			Timestamp:        int64(60 * (i + 1)),
			State:            st,
			EnergyRate:       -v,
			CPULoad:          v,
			Voltage:          12,
			ScreenBrightness: 50,
		}
	}
	return out
}

func TestSummarize_Empty(t *testing.T) {
	s, err := Summarize(nil)
	require.NoError(t, err)
	assert.Zero(t, s.Samples)
	assert.NotNil(t, s.States)
	assert.Equal(t, Metric{}, s.CPULoad)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(rows(100))
	require.NoError(t, err)

	assert.Equal(t, 100, s.Samples)
	assert.Equal(t, int64(60), s.Start)
	assert.Equal(t, int64(6000), s.End)
	assert.Equal(t, 25, s.States[model.StateCharging])
	assert.Equal(t, 75, s.States[model.StateDischarging])

	cpu := s.CPULoad
	assert.Equal(t, int64(100), cpu.Count)
	assert.Equal(t, 1.0, cpu.Min)
	assert.Equal(t, 100.0, cpu.Max)
	assert.InDelta(t, 50.5, cpu.Avg, 1e-9)
	assert.InDelta(t, 50, cpu.P50, 1.5)
	assert.InDelta(t, 90, cpu.P90, 2)
	assert.InDelta(t, 99, cpu.P99, 2)
	assert.LessOrEqual(t, cpu.P99, cpu.Max)

	// negative rates are tracked as well
	assert.Equal(t, -100.0, s.EnergyRate.Min)
	assert.Equal(t, -1.0, s.EnergyRate.Max)
	assert.InDelta(t, -50, s.EnergyRate.P50, 1.5)
}

func TestSummarize_ConstantColumn(t *testing.T) {
	s, err := Summarize(rows(10))
	require.NoError(t, err)
	assert.Equal(t, 12.0, s.Voltage.P50)
	assert.Equal(t, 12.0, s.Voltage.P99)
	assert.Equal(t, 50.0, s.ScreenBrightness.Avg)
}

func TestSummarize_SkipsNaN(t *testing.T) {
	in := rows(3)
	in[1].CPULoad = float32(math.NaN())
	s, err := Summarize(in)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.CPULoad.Count)
	assert.InDelta(t, 2, s.CPULoad.Avg, 1e-9)
}
