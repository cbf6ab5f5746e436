package llmprovider

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements LLMProvider over OpenAI's chat completion
// API, grounded on internal/agent/providers/openai.go's OpenAIProvider,
// trimmed from streaming to a single blocking CreateChatCompletion call.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider constructs an OpenAIProvider.
func NewOpenAIProvider(apiKey, defaultModel string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("llmprovider: openai API key is required")
	}
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), defaultModel: defaultModel}, nil
}

// Name implements LLMProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsTools implements LLMProvider.
func (p *OpenAIProvider) SupportsTools() bool { return true }

// Models implements LLMProvider.
func (p *OpenAIProvider) Models() []Model {
	return []Model{
		{ID: openai.GPT4o, ContextWindow: 128000, SupportsTools: true},
		{ID: openai.GPT4oMini, ContextWindow: 128000, SupportsTools: true},
	}
}

// Complete implements LLMProvider with a single blocking CreateChatCompletion call.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
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
		return CompletionResult{}, errors.New("llmprovider: openai returned no choices")
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

func convertOpenAIMessage(m Message) openai.ChatCompletionMessage {
	oaiMsg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: encodeOpenAIArgs(tc.Input),
			},
		})
	}
	return oaiMsg
}

func encodeOpenAIArgs(input map[string]any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func parseOpenAIArgs(raw string) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func convertOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}
