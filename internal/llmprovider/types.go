// Package llmprovider adapts the core's harness.CapabilityAdapter seam
// onto concrete LLM backends (spec §4.C.1's "the adapter owns prompt
// construction and provider calls"), grounded on
// internal/agent/provider_types.go's LLMProvider interface, simplified
// from streaming to a single blocking Complete call since the harness's
// Plan/Synthesize steps need one decision per call, not a token stream.
package llmprovider

import "context"

// Message is one turn in a conversation sent to a provider.
type Message struct {
	Role        string     // "user", "assistant", or "tool"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is the outcome of one executed ToolCall fed back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolSpec describes one callable tool's name/schema to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CompletionRequest mirrors internal/agent.CompletionRequest, narrowed
// to the fields the core's harness adapters actually populate.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionResult is one blocking completion: either free text, or one
// or more tool calls the harness must execute before the next Plan.
type CompletionResult struct {
	Text         string
	ToolCalls    []ToolCall
	Model        string
	InputTokens  int
	OutputTokens int
}

// Model describes one model a provider exposes.
type Model struct {
	ID             string
	ContextWindow  int
	SupportsTools  bool
}

// LLMProvider is the core's narrowed view of
// internal/agent.LLMProvider: one blocking call instead of a streaming
// channel.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}
