// Package metrics exposes Prometheus instrumentation for the step ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors the daemon updates at runtime. All increment
// helpers are nil-safe so callers can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	stepsRecorded prometheus.Counter
	storageErrors prometheus.Counter
	goalReached   prometheus.Counter
	rollovers     prometheus.Counter
	ledgerEntries prometheus.Gauge
}

// New builds a registry with process and Go runtime collectors plus the
// ledger-specific series.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		stepsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "stepledger_steps_recorded_total",
			Help: "Total step delta units accepted by the ledger.",
		}),
		storageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "stepledger_storage_errors_total",
			Help: "Total persistence operations that failed.",
		}),
		goalReached: factory.NewCounter(prometheus.CounterOpts{
			Name: "stepledger_goal_reached_total",
			Help: "Total days on which the daily goal was reached.",
		}),
		rollovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "stepledger_rollovers_total",
			Help: "Total day rollovers performed by the ledger.",
		}),
		ledgerEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stepledger_ledger_entries",
			Help: "Number of day entries currently held in the ledger.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AddStepsRecorded(n int64) {
	if m == nil {
		return
	}
	m.stepsRecorded.Add(float64(n))
}

func (m *Metrics) IncStorageErrors() {
	if m == nil {
		return
	}
	m.storageErrors.Inc()
}

func (m *Metrics) IncGoalReached() {
	if m == nil {
		return
	}
	m.goalReached.Inc()
}

func (m *Metrics) IncRollovers() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}

func (m *Metrics) SetLedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}
