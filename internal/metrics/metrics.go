// Package metrics defines the optional Prometheus counters the
// orchestrator increments when a Metrics value is wired in. Nothing in
// the hard core requires a registry — the orchestrator checks for a nil
// *Metrics and skips instrumentation when none is wired in.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of counters the orchestrator touches during a poll
// cycle and an LLM call.
type Metrics struct {
	MessagesReceived prometheus.Counter
	MessagesDeduped  prometheus.Counter
	HookErrors       *prometheus.CounterVec
	LLMCalls         prometheus.Counter
	LLMCallSeconds   prometheus.Histogram
}

// New registers cobot's counters on reg and returns them.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_received_total",
			Help: "Messages returned by a channel poll cycle.",
		}),
		MessagesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_deduped_total",
			Help: "Messages dropped as already-seen by the dedup set.",
		}),
		HookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hook_errors_total",
			Help: "Hook handler failures, by plugin and hook point.",
		}, []string{"plugin", "hook"}),
		LLMCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Chat completion calls made to the configured LLM provider.",
		}),
		LLMCallSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_call_seconds",
			Help:    "Latency of chat completion calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.MessagesReceived, m.MessagesDeduped, m.HookErrors, m.LLMCalls, m.LLMCallSeconds)
	return m
}
