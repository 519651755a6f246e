package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by the simulation loop and its sinks.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles             prometheus.Counter
	skippedTicks       prometheus.Counter
	predictionFailures *prometheus.CounterVec
	events             *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	historyLength      prometheus.Gauge
	sinkDropped        prometheus.Counter
	acknowledgements   prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solarguard_cycles_total",
			Help: "Total simulation cycles committed.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solarguard_skipped_ticks_total",
			Help: "Ticks that processed no row (wraparound or no data).",
		}),
		predictionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarguard_prediction_failures_total",
			Help: "Failed predictions by panel.",
		}, []string{"panel"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarguard_events_total",
			Help: "Warning and fault events raised.",
		}, []string{"kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarguard_cycle_duration_seconds",
			Help:    "Time spent computing and committing one cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		historyLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solarguard_history_length",
			Help: "Records held in the history log.",
		}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solarguard_sink_dropped_total",
			Help: "Cycle results dropped because the sink queue was full.",
		}),
		acknowledgements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solarguard_acknowledgements_total",
			Help: "Warnings removed by acknowledgement.",
		}),
	}

	reg.MustRegister(
		m.cycles,
		m.skippedTicks,
		m.predictionFailures,
		m.events,
		m.cycleDuration,
		m.historyLength,
		m.sinkDropped,
		m.acknowledgements,
	)
	return m
}

// CycleCommitted records a committed cycle, its duration and the history length
func (m *Metrics) CycleCommitted(seconds float64, historyLen int) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
	m.historyLength.Set(float64(historyLen))
}

// TickSkipped counts a tick that processed no row
func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

// PredictionFailed counts a failed prediction for a panel
func (m *Metrics) PredictionFailed(panelID int) {
	if m == nil {
		return
	}
	m.predictionFailures.WithLabelValues(strconv.Itoa(panelID)).Inc()
}

// EventRaised counts a warning or fault event
func (m *Metrics) EventRaised(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// SinkDropped counts a cycle dropped because the sink queue was full
func (m *Metrics) SinkDropped() {
	if m == nil {
		return
	}
	m.sinkDropped.Inc()
}

// Acknowledged counts warnings removed by acknowledgements
func (m *Metrics) Acknowledged(n int) {
	if m == nil {
		return
	}
	m.acknowledgements.Add(float64(n))
}
