// Package metrics declares the Prometheus collectors for the assistant
// pipeline. Collectors are registered on the default registry; the router
// exposes them at /metrics via promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExchangesTotal counts finished exchanges by terminal outcome:
	// completed, form, quota_exceeded, disabled, rate_limited, transient,
	// fatal, timeout or error.
	ExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgermate",
		Subsystem: "assistant",
		Name:      "exchanges_total",
		Help:      "Assistant exchanges by terminal outcome.",
	}, []string{"outcome"})

	// ModelCallDuration observes provider round trips, split by call stage.
	ModelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgermate",
		Subsystem: "assistant",
		Name:      "model_call_duration_seconds",
		Help:      "Chat completion call latency by stage (tools, synthesis).",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"stage"})

	// FunctionCallsTotal counts dispatched tool executions.
	FunctionCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgermate",
		Subsystem: "assistant",
		Name:      "function_calls_total",
		Help:      "Tool executions by registry and outcome.",
	}, []string{"registry", "outcome"})
)

// ObserveExchange records one finished exchange.
func ObserveExchange(outcome string) {
	ExchangesTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelCall records one provider round trip.
func ObserveModelCall(stage string, d time.Duration) {
	ModelCallDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFunctionCall records one tool execution.
func ObserveFunctionCall(registry string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	FunctionCallsTotal.WithLabelValues(registry, outcome).Inc()
}
