package llmprovider

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// VeniceBaseURL is Venice AI's OpenAI-compatible API endpoint.
const VeniceBaseURL = "https://api.venice.ai/api/v1"

// VeniceProvider implements LLMProvider against Venice AI's
// OpenAI-compatible chat completion API, grounded on
// internal/providers/venice/venice.go's Client (an openai.Client
// pointed at Venice's base URL), trimmed from streaming to a single
// blocking CreateChatCompletion call to match OpenAIProvider.
type VeniceProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewVeniceProvider constructs a VeniceProvider. defaultModel falls
// back to Venice's privacy-focused Llama model when empty.
func NewVeniceProvider(apiKey, defaultModel string) (*VeniceProvider, error) {
	if apiKey == "" {
		return nil, errors.New("llmprovider: venice API key is required")
	}
	if defaultModel == "" {
		defaultModel = "llama-3.3-70b"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = VeniceBaseURL
	return &VeniceProvider{client: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}, nil
}

// Name implements LLMProvider.
func (p *VeniceProvider) Name() string { return "venice" }

// SupportsTools implements LLMProvider.
func (p *VeniceProvider) SupportsTools() bool { return true }

// Models implements LLMProvider, listing Venice's private and
// anonymized-proxy model catalog.
func (p *VeniceProvider) Models() []Model {
	return []Model{
		{ID: "llama-3.3-70b", ContextWindow: 131072, SupportsTools: true},
		{ID: "llama-3.2-3b", ContextWindow: 131072, SupportsTools: true},
		{ID: "qwen3-235b-a22b-thinking-2507", ContextWindow: 131072, SupportsTools: true},
		{ID: "deepseek-v3.2", ContextWindow: 163840, SupportsTools: true},
		{ID: "claude-opus-45", ContextWindow: 202752, SupportsTools: true},
		{ID: "openai-gpt-52", ContextWindow: 262144, SupportsTools: true},
	}
}

// Complete implements LLMProvider over Venice's OpenAI-compatible
// endpoint, reusing OpenAIProvider's message/tool conversion.
func (p *VeniceProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, convertOpenAIMessage(m))
	}

	chatReq := openai.ChatCompletionRequest{Model: model, Messages: messages}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return CompletionResult{}, err
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, errors.New("llmprovider: venice returned no choices")
	}

	choice := resp.Choices[0].Message
	result := CompletionResult{
		Text:         choice.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: parseOpenAIArgs(tc.Function.Arguments)})
	}
	return result, nil
}
