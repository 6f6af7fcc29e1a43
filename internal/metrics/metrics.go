// Package metrics регистрирует метрики prometheus сервиса доступа.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitlement"

var (
	// ChecksTotal проверки доступа по источнику решения: role, processor, no_customer, error.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checks_total",
		Help:      "Entitlement checks by decision source.",
	}, []string{"source"})

	// ProcessorDuration время обращений к платёжному провайдеру.
	ProcessorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "request_duration_seconds",
		Help:      "Payment processor call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call"})

	AuthRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "retries_total",
		Help:      "Transient authentication failures that were retried.",
	})

	SnapshotLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "lookups_total",
		Help:      "Snapshot cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Payment webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})

	ReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "subscriptions_total",
		Help:      "Reconciled subscription records by outcome.",
	}, []string{"outcome"})

	AnalyticsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "events_total",
		Help:      "Analytics events by outcome (published, dropped_full, dropped_error, stored).",
	}, []string{"outcome"})
)
