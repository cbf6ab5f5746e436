// Package metrics exposes the Prometheus counters and histograms shared
// by the Event Store, Agent Harness, and Conductor (spec §11).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Core centralizes the orchestration core's Prometheus instruments.
type Core struct {
	// EventAppendCounter counts events appended to the log.
	// Labels: event_type
	EventAppendCounter *prometheus.CounterVec

	// EventAppendDuration measures Append latency in seconds.
	EventAppendDuration prometheus.Histogram

	// HarnessStepDuration measures the duration of one whole harness
	// Run (all plan+act iterations), observed once per terminal
	// AgentResult by RecordHarnessRun, by profile and outcome.
	// Labels: profile, outcome
	HarnessStepDuration *prometheus.HistogramVec

	// HarnessRunCounter counts terminal AgentResult outcomes.
	// Labels: profile, outcome, reason
	HarnessRunCounter *prometheus.CounterVec

	// ToolCallCounter counts tool invocations by name and outcome.
	// Labels: tool_name, failure_kind (empty on success)
	ToolCallCounter *prometheus.CounterVec

	// ConductorDispatchCounter counts agenda items dispatched.
	// Labels: capability
	ConductorDispatchCounter *prometheus.CounterVec

	// ConductorDecideCounter counts policy-gated Decide invocations.
	// Labels: kind
	ConductorDecideCounter *prometheus.CounterVec

	// ConductorActiveRuns is a gauge of in-flight runs.
	ConductorActiveRuns prometheus.Gauge

	// WriterPatchCounter counts applied patch operations by kind.
	// Labels: op
	WriterPatchCounter *prometheus.CounterVec

	// WriterRevisionGauge tracks the live head revision per document.
	// Labels: path
	WriterRevisionGauge *prometheus.GaugeVec
}

// NewCore constructs and registers all core metrics against the default
// Prometheus registry. Call once at process startup.
func NewCore() *Core {
	return &Core{
		EventAppendCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_eventstore_appends_total",
				Help: "Total number of events appended to the log, by event type",
			},
			[]string{"event_type"},
		),

		EventAppendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "choiros_eventstore_append_duration_seconds",
				Help:    "Duration of Append calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		HarnessStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "choiros_harness_step_duration_seconds",
				Help:    "Duration of one harness run (all plan+act iterations), by profile and outcome",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"profile", "outcome"},
		),

		HarnessRunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_harness_runs_total",
				Help: "Total number of harness runs by profile, outcome, and reason",
			},
			[]string{"profile", "outcome", "reason"},
		),

		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_tool_calls_total",
				Help: "Total number of tool calls by tool name and failure kind",
			},
			[]string{"tool_name", "failure_kind"},
		),

		ConductorDispatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_conductor_dispatches_total",
				Help: "Total number of agenda items dispatched by capability",
			},
			[]string{"capability"},
		),

		ConductorDecideCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_conductor_decisions_total",
				Help: "Total number of policy-gated Decide invocations by decision kind",
			},
			[]string{"kind"},
		),

		ConductorActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "choiros_conductor_active_runs",
				Help: "Current number of non-terminal runs",
			},
		),

		WriterPatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choiros_writer_patch_ops_total",
				Help: "Total number of patch operations applied, by op kind",
			},
			[]string{"op"},
		),

		WriterRevisionGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "choiros_writer_live_head_revision",
				Help: "Current live head revision per document path",
			},
			[]string{"path"},
		),
	}
}

// RecordAppend records one Append call.
func (c *Core) RecordAppend(eventType string, durationSeconds float64) {
	c.EventAppendCounter.WithLabelValues(eventType).Inc()
	c.EventAppendDuration.Observe(durationSeconds)
}

// RecordHarnessRun records a terminal harness AgentResult.
func (c *Core) RecordHarnessRun(profile, outcome, reason string, durationSeconds float64) {
	c.HarnessRunCounter.WithLabelValues(profile, outcome, reason).Inc()
	c.HarnessStepDuration.WithLabelValues(profile, outcome).Observe(durationSeconds)
}

// RecordToolCall records one tool invocation outcome.
func (c *Core) RecordToolCall(toolName, failureKind string) {
	c.ToolCallCounter.WithLabelValues(toolName, failureKind).Inc()
}

// RecordDispatch records one agenda item dispatch.
func (c *Core) RecordDispatch(capability string) {
	c.ConductorDispatchCounter.WithLabelValues(capability).Inc()
}

// RecordDecide records one policy Decide invocation.
func (c *Core) RecordDecide(kind string) {
	c.ConductorDecideCounter.WithLabelValues(kind).Inc()
}

// RunStarted increments the active-runs gauge.
func (c *Core) RunStarted() {
	c.ConductorActiveRuns.Inc()
}

// RunEnded decrements the active-runs gauge.
func (c *Core) RunEnded() {
	c.ConductorActiveRuns.Dec()
}

// RecordPatch records one applied patch operation.
func (c *Core) RecordPatch(op string) {
	c.WriterPatchCounter.WithLabelValues(op).Inc()
}

// SetRevision sets the live head revision gauge for path.
func (c *Core) SetRevision(path string, revision int64) {
	c.WriterRevisionGauge.WithLabelValues(path).Set(float64(revision))
}
