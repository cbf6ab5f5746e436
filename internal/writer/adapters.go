package writer

import (
	"github.com/choiros/core/internal/harness"
)

// PlanFunc is the LLM-backed decision function an adapter delegates
// to; kept as a function value so these adapters don't need to import
// internal/llmprovider directly.
type PlanFunc func(ctx harness.PlanContext) (harness.PlanDecision, error)

// SynthesizeFunc produces the adapter's final artifact.
type SynthesizeFunc func(steps []harness.Step, ctx harness.PlanContext) (harness.FinalResult, error)

// delegationAllowedTools and synthesisAllowedTools fix the structural
// invariant in spec §4.E.4: "Neither adapter is permitted worker tools
// (bash, web_search, file_read, file_edit)."
var (
	delegationAllowedTools = map[string]bool{"message_writer": true, "finished": true}
	synthesisAllowedTools  = map[string]bool{"finished": true}
)

// DelegationAdapter is WriterDelegationAdapter (spec §4.E.4), used
// when the Conductor delegates synthesis to the Writer.
type DelegationAdapter struct {
	plan      PlanFunc
	synthFn   SynthesizeFunc
	execute   func(harness.ToolCall, harness.ExecContext) harness.ToolResult
}

// NewDelegationAdapter constructs a DelegationAdapter. execute handles
// the two allowed tool names (message_writer, finished); plan and
// synthesize are LLM-backed.
func NewDelegationAdapter(plan PlanFunc, synthFn SynthesizeFunc, execute func(harness.ToolCall, harness.ExecContext) harness.ToolResult) *DelegationAdapter {
	return &DelegationAdapter{plan: plan, synthFn: synthFn, execute: execute}
}

func (a *DelegationAdapter) AllowedToolNames() map[string]bool { return delegationAllowedTools }
func (a *DelegationAdapter) Plan(ctx harness.PlanContext) (harness.PlanDecision, error) {
	return a.plan(ctx)
}
func (a *DelegationAdapter) ExecuteTool(call harness.ToolCall, execCtx harness.ExecContext) harness.ToolResult {
	return a.execute(call, execCtx)
}
func (a *DelegationAdapter) Synthesize(steps []harness.Step, ctx harness.PlanContext) (harness.FinalResult, error) {
	return a.synthFn(steps, ctx)
}
func (a *DelegationAdapter) TraceRole() string { return "writer-delegation" }

var _ harness.CapabilityAdapter = (*DelegationAdapter)(nil)

// SynthesisAdapter is WriterSynthesisAdapter (spec §4.E.4), used for
// inline synthesis with no delegated tool surface at all.
type SynthesisAdapter struct {
	plan    PlanFunc
	synthFn SynthesizeFunc
}

// NewSynthesisAdapter constructs a SynthesisAdapter.
func NewSynthesisAdapter(plan PlanFunc, synthFn SynthesizeFunc) *SynthesisAdapter {
	return &SynthesisAdapter{plan: plan, synthFn: synthFn}
}

func (a *SynthesisAdapter) AllowedToolNames() map[string]bool { return synthesisAllowedTools }
func (a *SynthesisAdapter) Plan(ctx harness.PlanContext) (harness.PlanDecision, error) {
	return a.plan(ctx)
}
func (a *SynthesisAdapter) ExecuteTool(harness.ToolCall, harness.ExecContext) harness.ToolResult {
	return harness.ToolResult{FailureKind: "disallowed_tool"}
}
func (a *SynthesisAdapter) Synthesize(steps []harness.Step, ctx harness.PlanContext) (harness.FinalResult, error) {
	return a.synthFn(steps, ctx)
}
func (a *SynthesisAdapter) TraceRole() string { return "writer-synthesis" }

var _ harness.CapabilityAdapter = (*SynthesisAdapter)(nil)
