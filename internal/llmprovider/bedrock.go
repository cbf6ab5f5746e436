package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// modelDiscoveryTTL bounds how long a BedrockProvider trusts its last
// ListFoundationModels call before refreshing on the next Models().
const modelDiscoveryTTL = time.Hour

// BedrockProvider implements LLMProvider over AWS Bedrock's Converse API,
// grounded on internal/agent/providers/bedrock.go's BedrockProvider,
// trimmed from ConverseStream to a single blocking Converse call. Models()
// is backed by the control-plane discovery client, grounded on
// internal/providers/bedrock/discovery.go's ListFoundationModels call,
// simplified from its package-level cache to one instance-scoped cache
// so each provider refreshes independently of any other.
type BedrockProvider struct {
	client         *bedrockruntime.Client
	discoveryClient *bedrock.Client
	defaultModel   string

	discoveryMu     sync.Mutex
	discovered      []Model
	discoveredAt    time.Time
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// NewBedrockProvider constructs a BedrockProvider, using explicit static
// credentials when provided or the default AWS credential chain otherwise.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("llmprovider: bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:          bedrockruntime.NewFromConfig(awsCfg),
		discoveryClient: bedrock.NewFromConfig(awsCfg),
		defaultModel:    cfg.DefaultModel,
	}, nil
}

// Name implements LLMProvider.
func (p *BedrockProvider) Name() string { return "bedrock" }

// SupportsTools implements LLMProvider.
func (p *BedrockProvider) SupportsTools() bool { return true }

// fallbackModels is returned by Models() when live discovery has never
// succeeded (no AWS bedrock:ListFoundationModels permission, or the
// control-plane call failed) so callers always get a usable catalog.
func fallbackModels() []Model {
	return []Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", ContextWindow: 200000, SupportsTools: true},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", ContextWindow: 200000, SupportsTools: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", ContextWindow: 200000, SupportsTools: true},
		{ID: "amazon.titan-text-express-v1", ContextWindow: 8192, SupportsTools: false},
		{ID: "meta.llama3-70b-instruct-v1:0", ContextWindow: 8192, SupportsTools: false},
	}
}

// Models implements LLMProvider by discovering the account's available
// foundation models via the Bedrock control plane, caching the result for
// modelDiscoveryTTL. Falls back to a static catalog when discovery has
// never succeeded.
func (p *BedrockProvider) Models() []Model {
	p.discoveryMu.Lock()
	defer p.discoveryMu.Unlock()

	if time.Since(p.discoveredAt) < modelDiscoveryTTL && len(p.discovered) > 0 {
		return p.discovered
	}

	models, err := p.discoverModels(context.Background())
	if err != nil || len(models) == 0 {
		if len(p.discovered) > 0 {
			return p.discovered
		}
		return fallbackModels()
	}
	p.discovered = models
	p.discoveredAt = time.Now()
	return models
}

// discoverModels lists ACTIVE foundation models via the Bedrock
// control-plane API and converts each summary into a Model.
func (p *BedrockProvider) discoverModels(ctx context.Context) ([]Model, error) {
	if p.discoveryClient == nil {
		return nil, errors.New("llmprovider: bedrock discovery client not initialized")
	}
	out, err := p.discoveryClient.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("llmprovider: bedrock list foundation models: %w", err)
	}

	models := make([]Model, 0, len(out.ModelSummaries))
	for _, summary := range out.ModelSummaries {
		if summary.ModelLifecycle != nil {
			status := string(summary.ModelLifecycle.Status)
			if status != "" && status != "ACTIVE" {
				continue
			}
		}
		supportsTools := false
		for _, input := range summary.InputModalities {
			if input == bedrocktypes.ModelModalityText {
				supportsTools = true
			}
		}
		models = append(models, Model{
			ID:            aws.ToString(summary.ModelId),
			ContextWindow: contextWindowForModel(aws.ToString(summary.ModelId)),
			SupportsTools: supportsTools && strings.Contains(strings.ToLower(aws.ToString(summary.ModelId)), "claude"),
		})
	}
	return models, nil
}

// contextWindowForModel estimates a context window from known model-ID
// prefixes; Bedrock's ListFoundationModels response doesn't carry context
// window size, so this mirrors fallbackModels' figures for the families
// it recognizes and assumes a conservative default otherwise.
func contextWindowForModel(modelID string) int {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "claude"):
		return 200000
	case strings.Contains(id, "titan"):
		return 8192
	case strings.Contains(id, "llama3"):
		return 8192
	default:
		return 4096
	}
}

// Complete implements LLMProvider with a single blocking Converse call.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if p.client == nil {
		return CompletionResult{}, errors.New("llmprovider: bedrock client not initialized")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	converseReq := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: convertBedrockMessages(req.Messages),
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > 1<<30 {
			maxTokens = 1 << 30
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = convertBedrockTools(req.Tools)
	}

	resp, err := p.client.Converse(ctx, converseReq)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("llmprovider: bedrock converse: %w", err)
	}

	result := CompletionResult{Model: model}
	if resp.Usage != nil {
		if resp.Usage.InputTokens != nil {
			result.InputTokens = int(*resp.Usage.InputTokens)
		}
		if resp.Usage.OutputTokens != nil {
			result.OutputTokens = int(*resp.Usage.OutputTokens)
		}
	}

	output, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return result, nil
	}
	for _, block := range output.Value.Content {
		switch variant := block.(type) {
		case *types.ContentBlockMemberText:
			result.Text += variant.Value
		case *types.ContentBlockMemberToolUse:
			input := map[string]any{}
			if variant.Value.Input != nil {
				raw, err := variant.Value.Input.MarshalSmithyDocument()
				if err == nil {
					_ = json.Unmarshal(raw, &input)
				}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:    aws.ToString(variant.Value.ToolUseId),
				Name:  aws.ToString(variant.Value.Name),
				Input: input,
			})
		}
	}
	return result, nil
}

func convertBedrockMessages(messages []Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		var content []types.ContentBlock
		if m.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}
		for _, tr := range m.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(tc.Input),
				},
			})
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out
}

func convertBedrockTools(tools []ToolSpec) *types.ToolConfiguration {
	toolSpecs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		toolSpecs = append(toolSpecs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(t.InputSchema),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: toolSpecs}
}
