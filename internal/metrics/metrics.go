// Package metrics exports ingestion and battery gauges in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/topabomb/BatteryMaster/internal/cache"
	"github.com/topabomb/BatteryMaster/internal/model"
)

const namespace = "batterymaster"

var states = []model.BatteryState{
	model.StateUnknown, model.StateCharging, model.StateDischarging, model.StateFull, model.StateEmpty,
}

// Metrics holds the collectors updated on every ingested reading.
type Metrics struct {
	samples     prometheus.Counter
	dropped     prometheus.Counter
	merges      prometheus.Counter
	transitions *prometheus.CounterVec

	percentage prometheus.Gauge
	energyRate prometheus.Gauge
	voltage    prometheus.Gauge
	health     prometheus.Gauge
	cpuLoad    prometheus.Gauge
	state      *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Failure counts are
// read from c at scrape time.
func New(reg prometheus.Registerer, c *cache.Cache) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_total",
			Help: "Readings accepted by the store.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_dropped_total",
			Help: "Readings dropped while the raw tier was recreated.",
		}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "merges_total",
			Help: "Tier merge cycles run.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_transitions_total",
			Help: "Battery state transitions recorded in history.",
		}, []string{"from", "to"}),
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "battery_percentage",
			Help: "Last reported charge percentage.",
		}),
		energyRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "battery_energy_rate_watts",
			Help: "Last reported charge or discharge rate.",
		}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "battery_voltage_volts",
			Help: "Last reported battery voltage.",
		}),
		health: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "battery_state_of_health_percent",
			Help: "Full capacity as a percentage of design capacity.",
		}),
		cpuLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cpu_load_percent",
			Help: "Last reported CPU load.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "battery_state",
			Help: "1 for the current battery state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(m.samples, m.dropped, m.merges, m.transitions,
		m.percentage, m.energyRate, m.voltage, m.health, m.cpuLoad, m.state)

	if c != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "collection_failures_total",
			Help: "Collection cycles that failed to read or store a reading.",
		}, func() float64 { return float64(c.Snapshot().Failures) }))
	}
	return m
}

// Observe updates the collectors from one ingested reading. Its signature
// matches the ingest sink.
func (m *Metrics) Observe(r model.Reading, cs model.ChangeSet) {
	if cs.Dropped {
		m.dropped.Inc()
		return
	}
	m.samples.Inc()
	if cs.Merged {
		m.merges.Inc()
	}
	if tr := cs.Transition; tr != nil {
		m.transitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}

	b := r.Battery
	m.percentage.Set(float64(b.Percentage))
	m.energyRate.Set(float64(b.EnergyRate))
	m.voltage.Set(float64(b.Voltage))
	m.health.Set(float64(b.StateOfHealth))
	m.cpuLoad.Set(float64(r.System.CPULoad))
	for _, s := range states {
		v := 0.0
		if s == b.State {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
