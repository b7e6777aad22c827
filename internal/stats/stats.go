// Package stats summarizes tier rows into percentile distributions.
package stats

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/topabomb/BatteryMaster/internal/model"
)

// relativeAccuracy is the DDSketch relative error bound for percentiles.
const relativeAccuracy = 0.01

// Metric summarizes one column over a window.
type Metric struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

// Summary is the distribution of tier rows between Start and End.
type Summary struct {
	Start            int64                      `json:"start"`
	End              int64                      `json:"end"`
	Samples          int                        `json:"samples"`
	States           map[model.BatteryState]int `json:"states"`
	EnergyRate       Metric                     `json:"energy_rate"`
	CPULoad          Metric                     `json:"cpu_load"`
	Voltage          Metric                     `json:"voltage"`
	ScreenBrightness Metric                     `json:"screen_brightness"`
}

// accumulator keeps running statistics for one metric.
type accumulator struct {
	count  int64
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

func newAccumulator() (*accumulator, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("creating sketch: %w", err)
	}
	return &accumulator{min: math.MaxFloat64, max: -math.MaxFloat64, sketch: sketch}, nil
}

func (a *accumulator) add(v float32) error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if err := a.sketch.Add(f); err != nil {
		return fmt.Errorf("adding value %v: %w", f, err)
	}
	a.count++
	a.sum += f
	a.min = math.Min(a.min, f)
	a.max = math.Max(a.max, f)
	return nil
}

func (a *accumulator) metric() Metric {
	if a.count == 0 {
		return Metric{}
	}
	m := Metric{Count: a.count, Min: a.min, Max: a.max, Avg: a.sum / float64(a.count)}
	m.P50, _ = a.sketch.GetValueAtQuantile(0.50)
	m.P90, _ = a.sketch.GetValueAtQuantile(0.90)
	m.P99, _ = a.sketch.GetValueAtQuantile(0.99)
	// Sketch values carry relative error; keep them inside the observed range.
	m.P50 = clamp(m.P50, m.Min, m.Max)
	m.P90 = clamp(m.P90, m.Min, m.Max)
	m.P99 = clamp(m.P99, m.Min, m.Max)
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Summarize builds a Summary from rows ordered by timestamp. An empty input
// yields a zero Summary with an empty state map.
func Summarize(rows []model.TierSample) (Summary, error) {
	s := Summary{Samples: len(rows), States: make(map[model.BatteryState]int)}
	if len(rows) == 0 {
		return s, nil
	}
	s.Start = rows[0].Timestamp
	s.End = rows[len(rows)-1].Timestamp

	accs := make([]*accumulator, 4)
	for i := range accs {
		a, err := newAccumulator()
		if err != nil {
			return Summary{}, err
		}
		accs[i] = a
	}
	energy, cpu, voltage, brightness := accs[0], accs[1], accs[2], accs[3]

	for _, r := range rows {
		s.States[r.State]++
		for _, p := range []struct {
			acc *accumulator
			v   float32
		}{
			{energy, r.EnergyRate},
			{cpu, r.CPULoad},
			{voltage, r.Voltage},
			{brightness, r.ScreenBrightness},
		} {
			if err := p.acc.add(p.v); err != nil {
				return Summary{}, err
			}
		}
	}

	s.EnergyRate = energy.metric()
	s.CPULoad = cpu.metric()
	s.Voltage = voltage.metric()
	s.ScreenBrightness = brightness.metric()
	return s, nil
}
