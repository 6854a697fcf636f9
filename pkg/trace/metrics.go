package trace

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// Metrics decorates a Recorder with Prometheus instrumentation:
// decision/outcome/problem counters and node latency histograms.
// The underlying recorder still receives every event.
type Metrics struct {
	next ports.Recorder

	runsStarted  prometheus.Counter
	runsEnded    *prometheus.CounterVec
	decisions    prometheus.Counter
	outcomes     *prometheus.CounterVec
	problems     *prometheus.CounterVec
	nodeLatency  prometheus.Histogram
	tokensSpent  prometheus.Counter
}

// NewMetrics wraps next with instrumentation registered on reg.
func NewMetrics(next ports.Recorder, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		next: next,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_runs_started_total",
			Help: "Runs started.",
		}),
		runsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_runs_ended_total",
			Help: "Runs ended, by result.",
		}, []string{"success"}),
		decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_decisions_total",
			Help: "Decisions recorded.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_outcomes_total",
			Help: "Outcomes recorded, by result.",
		}, []string{"success"}),
		problems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_problems_total",
			Help: "Problems flagged, by severity.",
		}, []string{"severity"}),
		nodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hive_node_latency_seconds",
			Help:    "Node execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		tokensSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_tokens_total",
			Help: "LLM tokens consumed.",
		}),
	}
	reg.MustRegister(m.runsStarted, m.runsEnded, m.decisions, m.outcomes, m.problems, m.nodeLatency, m.tokensSpent)
	return m
}

// StartRun counts and forwards.
func (m *Metrics) StartRun(ctx context.Context, runID string, goal domain.Goal, input map[string]any) {
	m.runsStarted.Inc()
	m.next.StartRun(ctx, runID, goal, input)
}

// RecordDecision counts and forwards.
func (m *Metrics) RecordDecision(ctx context.Context, runID string, d domain.Decision) string {
	m.decisions.Inc()
	return m.next.RecordDecision(ctx, runID, d)
}

// RecordOutcome counts, observes latency/tokens and forwards.
func (m *Metrics) RecordOutcome(ctx context.Context, runID string, o domain.Outcome) {
	m.outcomes.WithLabelValues(boolLabel(o.Success)).Inc()
	m.nodeLatency.Observe(float64(o.LatencyMS) / 1000)
	if o.Tokens > 0 {
		m.tokensSpent.Add(float64(o.Tokens))
	}
	m.next.RecordOutcome(ctx, runID, o)
}

// RecordProblem counts and forwards.
func (m *Metrics) RecordProblem(ctx context.Context, runID string, p domain.Problem) {
	m.problems.WithLabelValues(p.Severity).Inc()
	m.next.RecordProblem(ctx, runID, p)
}

// EndRun counts and forwards.
func (m *Metrics) EndRun(ctx context.Context, runID string, success bool, narrative string, outputs map[string]any) {
	m.runsEnded.WithLabelValues(boolLabel(success)).Inc()
	m.next.EndRun(ctx, runID, success, narrative, outputs)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ ports.Recorder = (*Metrics)(nil)
