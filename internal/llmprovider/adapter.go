package llmprovider

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"strings"

	ctxwindow "github.com/choiros/core/internal/context"
	"github.com/choiros/core/internal/harness"
)

// ToolDef pairs a ToolSpec the model is shown with the Go function that
// runs when the model actually calls it.
type ToolDef struct {
	Spec    ToolSpec
	Execute func(harness.ToolCall, harness.ExecContext) harness.ToolResult
}

// SynthesisEnvelope is the JSON contract the model's final message must
// satisfy once the harness asks it to synthesize rather than act:
// free-text summary, an arbitrary artifacts payload, and zero or more
// citations bound for the Writer's citation registry (spec §4.F).
type SynthesisEnvelope struct {
	Summary   string                `json:"summary"`
	Artifacts json.RawMessage       `json:"artifacts,omitempty"`
	Citations []harness.CitationRef `json:"citations,omitempty"`
}

// Adapter implements harness.CapabilityAdapter over one LLMProvider:
// Plan asks the model to pick a tool call or declare itself finished,
// Synthesize asks it to emit a SynthesisEnvelope. This is the bridge
// between internal/llmprovider's blocking Complete call and the
// harness's plan/act/observe loop, grounded on internal/agent/loop.go's
// single-provider AgenticLoop generalized to the harness's pluggable
// CapabilityAdapter seam (spec §4.C.1).
type Adapter struct {
	provider     LLMProvider
	model        string
	role         string
	systemPrompt func(harness.PlanContext) string
	tools        []ToolDef
}

// NewAdapter constructs an Adapter. systemPrompt builds the system
// message for a given PlanContext; tools are the only tool calls this
// capability may request (empty means finish-only, like the Writer's
// synthesis-only adapter).
func NewAdapter(provider LLMProvider, model, role string, systemPrompt func(harness.PlanContext) string, tools []ToolDef) *Adapter {
	return &Adapter{provider: provider, model: model, role: role, systemPrompt: systemPrompt, tools: tools}
}

func (a *Adapter) AllowedToolNames() map[string]bool {
	names := make(map[string]bool, len(a.tools))
	for _, t := range a.tools {
		names[t.Spec.Name] = true
	}
	return names
}

func (a *Adapter) TraceRole() string { return a.role }

func (a *Adapter) ExecuteTool(call harness.ToolCall, execCtx harness.ExecContext) harness.ToolResult {
	for _, t := range a.tools {
		if t.Spec.Name == call.ToolName {
			return t.Execute(call, execCtx)
		}
	}
	return harness.ToolResult{FailureKind: "disallowed_tool"}
}

// Plan asks the model for the next step. A response with tool calls
// becomes PlanDecisionToolCalls; a plain-text response is treated as
// PlanDecisionFinal (the model declaring itself done).
func (a *Adapter) Plan(ctx harness.PlanContext) (harness.PlanDecision, error) {
	req := CompletionRequest{
		Model:    a.model,
		System:   a.systemPrompt(ctx),
		Messages: planMessages(ctx, a.model),
		Tools:    toolSpecs(a.tools),
	}
	inputPayload, _ := json.Marshal(req)

	result, err := a.provider.Complete(stdcontext.Background(), req)
	if err != nil {
		return harness.PlanDecision{}, fmt.Errorf("llmprovider: adapter plan: %w", err)
	}
	outputPayload, _ := json.Marshal(result)

	decision := harness.PlanDecision{
		ModelUsed:     result.Model,
		Provider:      a.provider.Name(),
		InputPayload:  inputPayload,
		OutputPayload: outputPayload,
	}
	if len(result.ToolCalls) == 0 {
		decision.Kind = harness.PlanDecisionFinal
		decision.FinalMessage = result.Text
		return decision, nil
	}

	decision.Kind = harness.PlanDecisionToolCalls
	for _, tc := range result.ToolCalls {
		args, marshalErr := json.Marshal(tc.Input)
		if marshalErr != nil {
			args = json.RawMessage("{}")
		}
		decision.ToolCalls = append(decision.ToolCalls, harness.ToolCall{ToolName: tc.Name, Args: args})
	}
	return decision, nil
}

// Synthesize asks the model to produce a SynthesisEnvelope from the
// accumulated steps, with no further tool calls offered.
func (a *Adapter) Synthesize(steps []harness.Step, ctx harness.PlanContext) (harness.FinalResult, error) {
	req := CompletionRequest{
		Model:    a.model,
		System:   a.systemPrompt(ctx) + "\n\nRespond with a JSON object matching {\"summary\":string,\"artifacts\":any,\"citations\":[{\"source_uri\":string,\"title\":string,\"snippet\":string}]}. No other text.",
		Messages: planMessages(ctx, a.model),
	}
	result, err := a.provider.Complete(stdcontext.Background(), req)
	if err != nil {
		return harness.FinalResult{}, fmt.Errorf("llmprovider: adapter synthesize: %w", err)
	}

	var envelope SynthesisEnvelope
	if err := json.Unmarshal([]byte(result.Text), &envelope); err != nil {
		return harness.FinalResult{Summary: result.Text}, nil
	}
	return harness.FinalResult{Summary: envelope.Summary, Artifacts: envelope.Artifacts, Citations: envelope.Citations}, nil
}

var _ harness.CapabilityAdapter = (*Adapter)(nil)

func toolSpecs(tools []ToolDef) []ToolSpec {
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, t.Spec)
	}
	return specs
}

// synthesizeReserveTokens is subtracted from a model's context window to
// leave room for its response when bounding planMessages.
const synthesizeReserveTokens = 4096

// planMessages turns the objective and each prior step into its own
// turn (pinning the objective/document turn first), then bounds the
// transcript to the model's context window via internal/context's
// oldest-first truncator before folding it back into the single
// CompletionRequest turn the blocking LLMProvider interface expects.
func planMessages(ctx harness.PlanContext, model string) []Message {
	first := "Objective: " + ctx.Objective
	if ctx.DocumentPath != "" {
		first += "\nDocument: " + ctx.DocumentPath
	}
	turns := []ctxwindow.Message{{Role: "user", Content: first, Pinned: true}}

	for _, step := range ctx.StepsSoFar {
		turns = append(turns, ctxwindow.Message{
			Role:    "assistant",
			Content: fmt.Sprintf("Called %s with %s", step.ToolCall.ToolName, string(step.ToolCall.Args)),
		})
		var result string
		if step.Result.Err != nil {
			result = fmt.Sprintf("Result: error (%s): %s", step.Result.FailureKind, step.Result.Err)
		} else {
			result = fmt.Sprintf("Result: %s", string(step.Result.Output))
		}
		turns = append(turns, ctxwindow.Message{Role: "user", Content: result})
	}

	maxTokens := ctxwindow.DefaultContextWindow - synthesizeReserveTokens
	if window, ok := ctxwindow.GetModelContextWindow(model); ok && window > synthesizeReserveTokens {
		maxTokens = window - synthesizeReserveTokens
	}
	truncator := ctxwindow.NewTruncator(ctxwindow.TruncateOldest, maxTokens)
	truncator.SetKeepLast(4)
	kept, _ := truncator.Truncate(turns)

	content := ""
	for _, t := range kept {
		content += t.Content + "\n\n"
	}
	return []Message{{Role: "user", Content: strings.TrimSpace(content)}}
}
