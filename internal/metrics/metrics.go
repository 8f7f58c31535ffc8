// Package metrics exposes Prometheus collectors for reminder scheduling,
// delivery and reconciliation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medd"

type Metrics struct {
	registry *prometheus.Registry

	scheduled        prometheus.Counter
	scheduleFailures *prometheus.CounterVec
	cancelled        prometheus.Counter
	rollbacks        prometheus.Counter
	delivered        *prometheus.CounterVec
	liveTriggers     prometheus.Gauge

	reconcileRuns    prometheus.Counter
	reconcileOutcome *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_scheduled_total",
			Help: "Reminder triggers successfully registered.",
		}),
		scheduleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_schedule_failures_total",
			Help: "Reminder registrations that failed, by reason.",
		}, []string{"reason"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_cancelled_total",
			Help: "Reminder triggers cancelled.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_batch_rollbacks_total",
			Help: "Batches unwound after a partial registration failure.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_delivered_total",
			Help: "Reminders fired and handed to delivery sinks, by trigger kind.",
		}, []string{"kind"}),
		liveTriggers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reminders_live_triggers",
			Help: "Triggers currently registered with the notifier.",
		}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_runs_total",
			Help: "Reconciliation passes executed.",
		}),
		reconcileOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_medications_total",
			Help: "Medications visited by reconciliation, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scheduled, m.scheduleFailures, m.cancelled, m.rollbacks,
		m.delivered, m.liveTriggers, m.reconcileRuns, m.reconcileOutcome,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Scheduled() {
	if m == nil {
		return
	}
	m.scheduled.Inc()
}

func (m *Metrics) ScheduleFailed(reason string) {
	if m == nil {
		return
	}
	m.scheduleFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Cancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *Metrics) RolledBack() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetLiveTriggers(n int) {
	if m == nil {
		return
	}
	m.liveTriggers.Set(float64(n))
}

func (m *Metrics) ReconcileRun(rescheduled, skipped, failed int) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileOutcome.WithLabelValues("rescheduled").Add(float64(rescheduled))
	m.reconcileOutcome.WithLabelValues("skipped").Add(float64(skipped))
	m.reconcileOutcome.WithLabelValues("failed").Add(float64(failed))
}
