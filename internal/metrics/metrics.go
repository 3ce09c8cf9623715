// Package metrics exposes each core's runtime counters as Prometheus
// collectors, so the simulation can be scraped the way the retrieval
// pack's production services are (ghjramos-aistore, the sms-gateway
// reference).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry bundles the collectors the core agents, the SMP baseline and
// the coordinator's GetStatistics update.
// It is built on a private prometheus.Registry rather than the global
// default one so tests can construct as many independent Registries as
// they like without collector-name collisions.
type Registry struct {
	reg *prometheus.Registry

	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	ProcessesExecuted *prometheus.CounterVec
	ContextSwitches   *prometheus.CounterVec
	CurrentLoad       *prometheus.GaugeVec
	AvgLatencyMicros  *prometheus.GaugeVec

	CommOverheadPct prometheus.Gauge
	DeliveryRatePct prometheus.Gauge

	SMPLockContentions   prometheus.Counter
	SMPCacheInvalidation prometheus.Counter
}

// New builds and registers a fresh set of collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multikernel_messages_sent_total",
			Help: "Messages sent by a core, labeled by core id.",
		}, []string{"core"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multikernel_messages_received_total",
			Help: "Messages received by a core, labeled by core id.",
		}, []string{"core"}),
		ProcessesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multikernel_processes_executed_total",
			Help: "Scheduler-pass executions, labeled by core id.",
		}, []string{"core"}),
		ContextSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multikernel_context_switches_total",
			Help: "Context switches, labeled by core id.",
		}, []string{"core"}),
		CurrentLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multikernel_current_load",
			Help: "Process table size, labeled by core id.",
		}, []string{"core"}),
		AvgLatencyMicros: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multikernel_avg_message_latency_microseconds",
			Help: "Last-sample message delivery latency, labeled by core id.",
		}, []string{"core"}),
		CommOverheadPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multikernel_comm_overhead_pct",
			Help: "messages / (messages + processes_executed) * 100, system-wide.",
		}),
		DeliveryRatePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multikernel_delivery_rate_pct",
			Help: "received_total / sent_total * 100, system-wide.",
		}),
		SMPLockContentions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multikernel_smp_lock_contentions_total",
			Help: "Global-lock acquisitions taken by the SMP baseline.",
		}),
		SMPCacheInvalidation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multikernel_smp_cache_invalidations_total",
			Help: "Cache-invalidation events simulated by the SMP baseline.",
		}),
	}

	reg.MustRegister(
		r.MessagesSent, r.MessagesReceived, r.ProcessesExecuted, r.ContextSwitches,
		r.CurrentLoad, r.AvgLatencyMicros, r.CommOverheadPct, r.DeliveryRatePct,
		r.SMPLockContentions, r.SMPCacheInvalidation,
	)
	return r
}

// Gather returns the current metric families, primarily for tests that
// want to assert on scraped output rather than the Go-level counters.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// Gatherer exposes the underlying prometheus.Gatherer, e.g. for wiring
// an HTTP /metrics handler in a surrounding process.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
