// Package metrics exposes the prometheus counters/histograms shared
// across the proxy, selector and trainer tiers, shaped around each
// tier's hot path (select, train, feedback).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SelectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "motor",
		Name:      "select_total",
		Help:      "Selections made, by experiment and policy.",
	}, []string{"experiment_id", "policy"})

	SelectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qbrix",
		Subsystem: "motor",
		Name:      "select_duration_seconds",
		Help:      "Latency of Select calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"experiment_id"})

	TrainBatchEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "cortex",
		Name:      "train_batch_events_total",
		Help:      "Feedback events folded into params, by experiment.",
	}, []string{"experiment_id"})

	TrainUnknownExperiment = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "cortex",
		Name:      "train_unknown_experiment_total",
		Help:      "Events dropped because their experiment snapshot was missing.",
	}, []string{"experiment_id"})

	FeedbackAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "proxy",
		Name:      "feedback_accepted_total",
		Help:      "Feedback events accepted and published to the stream.",
	})

	FeedbackRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "proxy",
		Name:      "feedback_rejected_total",
		Help:      "Feedback calls rejected, by reason (invalid_token, expired_token).",
	}, []string{"reason"})

	GateShortCircuitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qbrix",
		Subsystem: "proxy",
		Name:      "gate_short_circuit_total",
		Help:      "Selections resolved by the gate without reaching the bandit.",
	}, []string{"experiment_id"})
)

// MustRegister registers every collector against reg. It panics if a
// collector is already registered there.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		SelectTotal, SelectDuration,
		TrainBatchEvents, TrainUnknownExperiment,
		FeedbackAccepted, FeedbackRejected,
		GateShortCircuitTotal,
	)
}
