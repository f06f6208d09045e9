// Package telemetry provides optional instrumentation decorators for a
// Runtime: a Prometheus-backed DiagnosticSink and an OpenTelemetry tracer
// around SendTo/StreamTo. Neither is required to construct or run a
// Runtime — both are attached the same way memory, skills, or a
// compactor are, by composition rather than by the core loop importing
// an observability SDK directly.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexuscore/agentrt/internal/agent"
)

// Metrics collects Prometheus counters and histograms for runtime
// activity. It implements agent.DiagnosticSink so it can be attached via
// Runtime.WithDiagnostics (optionally chained with another sink through
// MultiSink) and separately exposes ObserveRounds/ObserveToolDispatch for
// callers that wrap SendTo/StreamTo/Dispatch directly.
type Metrics struct {
	registry *prometheus.Registry

	diagnostics *prometheus.CounterVec
	roundsTotal *prometheus.HistogramVec
	toolLatency *prometheus.HistogramVec
	compactions *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered against a fresh
// Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.diagnostics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "diagnostics_total",
		Help:      "Count of out-of-band diagnostics emitted by the execution loop, by kind.",
	}, []string{"agent_name", "kind"})

	m.roundsTotal = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "rounds_per_call",
		Help:      "Number of provider rounds consumed by a single send_to/stream_to call.",
		Buckets:   prometheus.LinearBuckets(1, 1, 16),
	}, []string{"agent_name"})

	m.toolLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "dispatch_duration_seconds",
		Help:      "Tool dispatch latency in seconds, by tool name.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"tool_name"})

	m.compactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "compactions_total",
		Help:      "Count of compaction attempts, by outcome.",
	}, []string{"agent_name", "outcome"})

	m.registry.MustRegister(m.diagnostics, m.roundsTotal, m.toolLatency, m.compactions)
	return m
}

// Registry exposes the underlying Prometheus registry for a caller to
// serve via promhttp.HandlerFor, or merge into its own registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Emit implements agent.DiagnosticSink, tallying each diagnostic by kind
// and, for compaction outcomes, recording a dedicated counter.
func (m *Metrics) Emit(_ context.Context, d agent.Diagnostic) {
	m.diagnostics.WithLabelValues(d.AgentName, string(d.Kind)).Inc()
	switch d.Kind {
	case agent.DiagCompactionDone:
		m.compactions.WithLabelValues(d.AgentName, "success").Inc()
	case agent.DiagCompactionError:
		m.compactions.WithLabelValues(d.AgentName, "failed").Inc()
	}
}

// ObserveRounds records how many provider rounds a single call consumed.
func (m *Metrics) ObserveRounds(agentName string, rounds int) {
	m.roundsTotal.WithLabelValues(agentName).Observe(float64(rounds))
}

// ObserveToolDispatch records how long a tool dispatch took.
func (m *Metrics) ObserveToolDispatch(toolName string, d time.Duration) {
	m.toolLatency.WithLabelValues(toolName).Observe(d.Seconds())
}

// MultiSink fans a diagnostic out to every attached sink, letting a
// Prometheus Metrics sink and e.g. a ChanDiagnosticSink coexist on one
// Runtime without either replacing the other.
type MultiSink []agent.DiagnosticSink

func (s MultiSink) Emit(ctx context.Context, d agent.Diagnostic) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, d)
		}
	}
}
