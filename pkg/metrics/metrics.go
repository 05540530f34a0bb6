// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parcel_share"

var (
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transitions_total", Help: "Committed booking transitions"},
		[]string{"action", "from", "to"},
	)
	BookingTransitionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transition_rejections_total", Help: "Booking actions rejected before any mutation"},
		[]string{"action", "code"},
	)
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_provider_calls_total", Help: "Payment provider calls by outcome"},
		[]string{"operation", "outcome"},
	)
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_latency_seconds",
			Help:      "Payment provider call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	CodeVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "verification_code_checks_total", Help: "Verification code checks by outcome"},
		[]string{"code_type", "outcome"},
	)
	EscrowMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "escrow_movements_cents_total", Help: "Money moved through escrow, in minor units"},
		[]string{"movement"},
	)
	CancellationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cancellation_decisions_total", Help: "Cancellation policy decisions"},
		[]string{"type", "allowed"},
	)
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "jobs_enqueued_total", Help: "Background jobs enqueued"},
		[]string{"kind", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPPanics = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_panics_total", Help: "Handler panics recovered by the middleware"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
