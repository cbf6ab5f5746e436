package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/choiros/core/internal/coreerrors"
)

type fakeAdapter struct {
	allowed  map[string]bool
	plans    []PlanDecision
	planErr  error
	planIdx  int
	toolFn   func(ToolCall) ToolResult
	synthErr error
}

func (f *fakeAdapter) AllowedToolNames() map[string]bool { return f.allowed }

func (f *fakeAdapter) Plan(PlanContext) (PlanDecision, error) {
	if f.planErr != nil {
		return PlanDecision{}, f.planErr
	}
	if f.planIdx >= len(f.plans) {
		return PlanDecision{Kind: PlanDecisionFinal, FinalMessage: "done"}, nil
	}
	d := f.plans[f.planIdx]
	f.planIdx++
	return d, nil
}

func (f *fakeAdapter) ExecuteTool(call ToolCall, _ ExecContext) ToolResult {
	if f.toolFn != nil {
		return f.toolFn(call)
	}
	return ToolResult{Output: json.RawMessage(`{"ok":true}`)}
}

func (f *fakeAdapter) Synthesize(steps []Step, _ PlanContext) (FinalResult, error) {
	if f.synthErr != nil {
		return FinalResult{}, f.synthErr
	}
	return FinalResult{Summary: "synthesized"}, nil
}

func (f *fakeAdapter) TraceRole() string { return "worker" }

var _ CapabilityAdapter = (*fakeAdapter)(nil)

func toolCallDecision(name string, args string) PlanDecision {
	return PlanDecision{Kind: PlanDecisionToolCalls, ToolCalls: []ToolCall{{ToolName: name, Args: json.RawMessage(args)}}}
}

func TestHarnessSynthesizesOnFinalDecision(t *testing.T) {
	adapter := &fakeAdapter{allowed: map[string]bool{"bash": true}}
	h := New(adapter, Config{MaxSteps: 8}, NoopSink{}, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "do the thing")

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want Completed", result.Outcome)
	}
	if result.Summary != "synthesized" {
		t.Fatalf("summary = %q", result.Summary)
	}
}

func TestHarnessRejectsDisallowedTool(t *testing.T) {
	adapter := &fakeAdapter{
		allowed: map[string]bool{"bash": true},
		plans:   []PlanDecision{toolCallDecision("rm_rf_root", `{}`)},
	}
	h := New(adapter, Config{MaxSteps: 8}, NoopSink{}, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "obj")

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want Completed (disallowed tool is skipped, not fatal)", result.Outcome)
	}
}

func TestHarnessRepeatedActionGuardBlocks(t *testing.T) {
	adapter := &fakeAdapter{
		allowed: map[string]bool{"bash": true},
		plans: []PlanDecision{
			toolCallDecision("bash", `{"command":"curl http://example.com"}`),
			toolCallDecision("bash", `{"command":"curl http://example.com"}`),
			toolCallDecision("bash", `{"command":"curl http://example.com"}`),
		},
	}
	h := New(adapter, Config{MaxSteps: 8, RepeatedWindow: 3}, NoopSink{}, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "obj")

	if result.Outcome != OutcomeBlocked {
		t.Fatalf("outcome = %v, want Blocked", result.Outcome)
	}
	if result.Reason != string(coreerrors.CodeRepeatedAction) {
		t.Fatalf("reason = %q, want %q", result.Reason, coreerrors.CodeRepeatedAction)
	}
}

func TestHarnessMaxStepsCompletesWithReason(t *testing.T) {
	adapter := &fakeAdapter{
		allowed: map[string]bool{"bash": true},
		plans: []PlanDecision{
			toolCallDecision("bash", `{"n":1}`),
			toolCallDecision("bash", `{"n":2}`),
		},
	}
	h := New(adapter, Config{MaxSteps: 2, RepeatedWindow: 10}, NoopSink{}, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "obj")

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want Completed", result.Outcome)
	}
	if result.Reason != string(coreerrors.CodeMaxStepsReached) {
		t.Fatalf("reason = %q, want max_steps_reached", result.Reason)
	}
}

type capturingSink struct {
	events []capturedEvent
}

type capturedEvent struct {
	actorID, eventType string
	payload            any
}

func (s *capturingSink) Append(_ context.Context, actorID, eventType string, payload any, _, _ string) {
	s.events = append(s.events, capturedEvent{actorID: actorID, eventType: eventType, payload: payload})
}

func TestHarnessHarvestsWebSearchCitations(t *testing.T) {
	adapter := &fakeAdapter{
		allowed: map[string]bool{"web_search": true},
		plans:   []PlanDecision{toolCallDecision("web_search", `{"query":"who wrote it"}`)},
		toolFn: func(ToolCall) ToolResult {
			return ToolResult{Output: json.RawMessage(`{"results":[{"url":"https://example.com/a","title":"A","snippet":"s"}]}`)}
		},
	}
	sink := &capturingSink{}
	h := New(adapter, Config{MaxSteps: 8}, sink, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "find sources")

	if len(result.Citations) != 1 || result.Citations[0].SourceURI != "https://example.com/a" {
		t.Fatalf("expected 1 harvested citation, got %+v", result.Citations)
	}

	var sawProposed bool
	for _, e := range sink.events {
		if e.eventType == "citation.proposed" {
			sawProposed = true
		}
	}
	if !sawProposed {
		t.Fatal("expected a citation.proposed event to be emitted during harvesting")
	}
}

func TestHarnessLLMCallTrioSharesTraceID(t *testing.T) {
	adapter := &fakeAdapter{allowed: map[string]bool{"bash": true}}
	sink := &capturingSink{}
	h := New(adapter, Config{MaxSteps: 8}, sink, nil)

	h.Run(context.Background(), "run1", "task1", "doc.md", "obj")

	var traceIDs []string
	for _, e := range sink.events {
		if e.eventType != "llm.call.started" && e.eventType != "llm.call.completed" {
			continue
		}
		p, ok := e.payload.(llmCallPayload)
		if !ok {
			t.Fatalf("unexpected payload type %T for %s", e.payload, e.eventType)
		}
		if p.TraceID == "" {
			t.Fatalf("%s missing trace_id", e.eventType)
		}
		traceIDs = append(traceIDs, p.TraceID)
	}
	if len(traceIDs) != 2 {
		t.Fatalf("expected started+completed, got %d events", len(traceIDs))
	}
	if traceIDs[0] != traceIDs[1] {
		t.Fatalf("trace_id mismatch between started (%s) and completed (%s)", traceIDs[0], traceIDs[1])
	}
}

func TestHarnessPlanErrorFails(t *testing.T) {
	adapter := &fakeAdapter{planErr: errors.New("connection timeout talking to provider")}
	h := New(adapter, Config{MaxSteps: 8}, NoopSink{}, nil)

	result := h.Run(context.Background(), "run1", "task1", "doc.md", "obj")

	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want Failed", result.Outcome)
	}
	if result.Reason != string(coreerrors.CodeTimeout) {
		t.Fatalf("reason = %q, want timeout", result.Reason)
	}
}
