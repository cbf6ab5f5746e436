package harness

import (
	"context"
	"encoding/json"
	"time"

	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/metrics"
	"github.com/google/uuid"
)

const defaultRepeatedWindow = 3

// Harness runs one capability's agentic loop to completion (spec
// §4.C.3), generalizing internal/agent/loop.go's AgenticLoop from a
// single fixed provider+session pair to an arbitrary CapabilityAdapter
// and HarnessProfile pair.
type Harness struct {
	adapter   CapabilityAdapter
	config    Config
	sink      EventSink
	log       *corelog.Logger
	validator ToolCallValidator
	metrics   *metrics.Core
}

// WithMetrics attaches a metrics.Core that terminal AgentResult
// outcomes are recorded against. Optional; returns h for chaining.
func (h *Harness) WithMetrics(m *metrics.Core) *Harness {
	h.metrics = m
	return h
}

// New constructs a Harness. sink may be NoopSink{} when trace emission
// is not needed (e.g. a unit test exercising adapter behavior only).
func New(adapter CapabilityAdapter, config Config, sink EventSink, log *corelog.Logger) *Harness {
	if config.MaxSteps <= 0 {
		config.MaxSteps = 8
	}
	if config.RepeatedWindow <= 0 {
		config.RepeatedWindow = defaultRepeatedWindow
	}
	if sink == nil {
		sink = NoopSink{}
	}
	return &Harness{adapter: adapter, config: config, sink: sink, log: log}
}

// WithToolCallValidator attaches a schema validator checked before
// every tool call is handed to the adapter (spec §9.1). Returns h for
// chaining at construction time.
func (h *Harness) WithToolCallValidator(v ToolCallValidator) *Harness {
	h.validator = v
	return h
}

// Run executes the plan→act→observe loop to a terminal AgentResult
// (spec §4.C.3). A callID generated per Run scopes every emitted trace
// event; runID and
// taskID correlate back to the owning Conductor run, empty when the
// harness runs standalone (e.g. a Writer-delegate adapter).
func (h *Harness) Run(ctx context.Context, runID, taskID, documentPath, objective string) (result AgentResult) {
	startedAt := time.Now()
	if h.metrics != nil {
		defer func() {
			h.metrics.RecordHarnessRun(string(h.config.Profile), result.Outcome.String(), result.Reason, time.Since(startedAt).Seconds())
		}()
	}

	if h.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.CallTimeout)
		defer cancel()
	}

	planCtx := PlanContext{
		RunID:        runID,
		TaskID:       taskID,
		Objective:    objective,
		DocumentPath: documentPath,
	}
	callID := uuid.NewString()
	var harvested []CitationRef

	for {
		select {
		case <-ctx.Done():
			return AgentResult{Outcome: OutcomeFailed, Reason: string(coreerrors.CodeTimeout), Steps: len(planCtx.StepsSoFar)}
		default:
		}

		decision, err := h.plan(ctx, planCtx, callID)
		if err != nil {
			return AgentResult{Outcome: OutcomeFailed, Reason: classifyPlanError(err), Steps: len(planCtx.StepsSoFar)}
		}

		if decision.Kind == PlanDecisionFinal || len(planCtx.StepsSoFar) >= h.config.MaxSteps {
			reason := ""
			if len(planCtx.StepsSoFar) >= h.config.MaxSteps {
				reason = string(coreerrors.CodeMaxStepsReached)
			}
			return h.synthesize(ctx, planCtx, reason, harvested)
		}

		for _, call := range decision.ToolCalls {
			if !h.toolAllowed(call.ToolName) {
				h.sink.Append(ctx, h.adapter.TraceRole(), "worker.tool.result", toolResultPayload(call, ToolResult{FailureKind: string(coreerrors.CodeDisallowedTool)}, callID), runID, taskID)
				continue
			}
			if h.validator != nil {
				if err := h.validator.Validate(call.ToolName, call.Args); err != nil {
					h.sink.Append(ctx, h.adapter.TraceRole(), "worker.tool.result", toolResultPayload(call, ToolResult{Err: err, FailureKind: string(coreerrors.CodeDisallowedTool)}, callID), runID, taskID)
					continue
				}
			}

			h.sink.Append(ctx, h.adapter.TraceRole(), "worker.tool.call", toolCallPayload(call, callID), runID, taskID)
			result := h.adapter.ExecuteTool(call, ExecContext{RunID: runID, TaskID: taskID, CallID: callID})
			h.sink.Append(ctx, h.adapter.TraceRole(), "worker.tool.result", toolResultPayload(call, result, callID), runID, taskID)

			planCtx.StepsSoFar = append(planCtx.StepsSoFar, Step{ToolCall: call, Result: result})

			if call.ToolName == "web_search" && result.Err == nil {
				harvested = append(harvested, h.harvestCitations(ctx, result, runID, taskID)...)
			}

			if repeated(planCtx.StepsSoFar, h.config.RepeatedWindow) {
				return AgentResult{Outcome: OutcomeBlocked, Reason: string(coreerrors.CodeRepeatedAction), Steps: len(planCtx.StepsSoFar)}
			}
		}
	}
}

// webSearchResult is one hit in a web_search tool's output (spec
// §4.F step 1: "the Researcher harness harvests the URLs returned by
// web_search").
type webSearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type webSearchOutput struct {
	Results []webSearchResult `json:"results"`
}

// harvestCitations parses a web_search tool's result for URLs and
// emits a citation.proposed trace event per hit, returning the
// CitationRef batch so it can be folded into the terminal AgentResult
// for the Conductor to hand to the Writer (spec §4.F steps 1-2).
// Malformed or empty output is not an error: not every tool call
// yields citable sources.
func (h *Harness) harvestCitations(ctx context.Context, result ToolResult, runID, taskID string) []CitationRef {
	var out webSearchOutput
	if err := json.Unmarshal(result.Output, &out); err != nil {
		return nil
	}
	refs := make([]CitationRef, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URL == "" {
			continue
		}
		refs = append(refs, CitationRef{SourceURI: r.URL, Title: r.Title, Snippet: r.Snippet})
		h.sink.Append(ctx, h.adapter.TraceRole(), "citation.proposed", citationProposedPayload{
			CitingActor: h.adapter.TraceRole(), CitedKind: "url", CitedID: r.URL, Title: r.Title, Excerpt: r.Snippet,
		}, runID, taskID)
	}
	return refs
}

type citationProposedPayload struct {
	CitingActor string `json:"citing_actor"`
	CitedKind   string `json:"cited_kind"`
	CitedID     string `json:"cited_id"`
	Title       string `json:"title,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
}

func (h *Harness) toolAllowed(name string) bool {
	allowed := h.adapter.AllowedToolNames()
	if allowed != nil && !allowed[name] {
		return false
	}
	if h.config.AllowedTools != nil && !h.config.AllowedTools[name] {
		return false
	}
	return true
}

func (h *Harness) plan(ctx context.Context, planCtx PlanContext, callID string) (PlanDecision, error) {
	traceID := uuid.NewString()
	startedAt := time.Now().UTC()
	h.sink.Append(ctx, h.adapter.TraceRole(), "llm.call.started", llmStartedPayload(h.adapter.TraceRole(), callID, traceID, startedAt), planCtx.RunID, planCtx.TaskID)

	decision, err := h.adapter.Plan(planCtx)

	durationMs := time.Since(startedAt).Milliseconds()
	if err != nil {
		h.sink.Append(ctx, h.adapter.TraceRole(), "llm.call.failed", llmFailedPayload(h.adapter.TraceRole(), callID, traceID, startedAt, durationMs, err), planCtx.RunID, planCtx.TaskID)
		return PlanDecision{}, err
	}
	h.sink.Append(ctx, h.adapter.TraceRole(), "llm.call.completed", llmCompletedPayload(decision, h.adapter.TraceRole(), callID, traceID, startedAt, durationMs), planCtx.RunID, planCtx.TaskID)
	return decision, nil
}

// synthesize asks the adapter for the terminal summary and folds in
// harvested, the citations accumulated from web_search harvesting
// during this run's steps (spec §4.F step 1), deduplicated against
// whatever the model itself already cited via its SynthesisEnvelope.
func (h *Harness) synthesize(ctx context.Context, planCtx PlanContext, capacityReason string, harvested []CitationRef) AgentResult {
	final, err := h.adapter.Synthesize(planCtx.StepsSoFar, planCtx)
	if err != nil {
		return AgentResult{Outcome: OutcomeFailed, Reason: coreerrors.Wrap(err).Message, Steps: len(planCtx.StepsSoFar)}
	}
	citations := mergeCitations(final.Citations, harvested)
	reason := ""
	if capacityReason != "" {
		reason = capacityReason
	}
	return AgentResult{
		Outcome: OutcomeCompleted, Reason: reason,
		Summary: final.Summary, Artifacts: final.Artifacts, Citations: citations,
		Steps: len(planCtx.StepsSoFar),
	}
}

// mergeCitations combines the model-declared and harvested citation
// lists, deduplicating by SourceURI so a source the model already
// cited in its SynthesisEnvelope isn't proposed twice.
func mergeCitations(declared, harvested []CitationRef) []CitationRef {
	if len(harvested) == 0 {
		return declared
	}
	seen := make(map[string]bool, len(declared))
	out := append([]CitationRef(nil), declared...)
	for _, r := range declared {
		seen[r.SourceURI] = true
	}
	for _, r := range harvested {
		if seen[r.SourceURI] {
			continue
		}
		seen[r.SourceURI] = true
		out = append(out, r)
	}
	return out
}

// repeated reports whether the last window steps are identical tool
// calls with identical input (spec §4.C.3 step 3, §8.4 scenario S4).
func repeated(steps []Step, window int) bool {
	if len(steps) < window {
		return false
	}
	last := steps[len(steps)-window:]
	first := last[0].ToolCall
	for _, s := range last[1:] {
		if s.ToolCall.ToolName != first.ToolName || string(s.ToolCall.Args) != string(first.Args) {
			return false
		}
	}
	return true
}

func classifyPlanError(err error) string {
	return string(coreerrors.Wrap(err).Code)
}

type llmCallPayload struct {
	Role          string          `json:"role"`
	FunctionName  string          `json:"function_name,omitempty"`
	ModelUsed     string          `json:"model_used,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	SystemContext string          `json:"system_context,omitempty"`
	Error         string          `json:"error,omitempty"`
	CallID        string          `json:"call_id"`
	TraceID       string          `json:"trace_id"`
}

func llmStartedPayload(role, callID, traceID string, startedAt time.Time) llmCallPayload {
	return llmCallPayload{Role: role, StartedAt: startedAt, CallID: callID, TraceID: traceID}
}

func llmCompletedPayload(decision PlanDecision, role, callID, traceID string, startedAt time.Time, durationMs int64) llmCallPayload {
	return llmCallPayload{
		Role: role, ModelUsed: decision.ModelUsed, Provider: decision.Provider,
		StartedAt: startedAt, DurationMs: durationMs,
		Input: boundPayload(decision.InputPayload), Output: boundPayload(decision.OutputPayload),
		CallID: callID, TraceID: traceID,
	}
}

func llmFailedPayload(role, callID, traceID string, startedAt time.Time, durationMs int64, err error) llmCallPayload {
	return llmCallPayload{Role: role, StartedAt: startedAt, DurationMs: durationMs, Error: boundString(err.Error()), CallID: callID, TraceID: traceID}
}

type toolCallEventPayload struct {
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
	CallID   string          `json:"call_id"`
}

func toolCallPayload(call ToolCall, callID string) toolCallEventPayload {
	return toolCallEventPayload{ToolName: call.ToolName, Args: boundPayload(call.Args), CallID: callID}
}

type toolResultEventPayload struct {
	ToolName    string          `json:"tool_name"`
	Output      json.RawMessage `json:"output,omitempty"`
	FailureKind string          `json:"failure_kind,omitempty"`
	CallID      string          `json:"call_id"`
}

func toolResultPayload(call ToolCall, result ToolResult, callID string) toolResultEventPayload {
	p := toolResultEventPayload{ToolName: call.ToolName, Output: boundPayload(result.Output), FailureKind: result.FailureKind, CallID: callID}
	if result.Err != nil && p.FailureKind == "" {
		p.FailureKind = string(coreerrors.Wrap(result.Err).Code)
	}
	return p
}
