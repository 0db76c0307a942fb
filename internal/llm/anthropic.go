package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/weft-ai/weft/pkg/models"
)

// AnthropicConfig contains configuration for creating an AnthropicProvider.
type AnthropicConfig struct {
	// Model is the Claude model to use (e.g., anthropic.ModelClaudeSonnet4_20250514).
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens is the default response cap when a request does not set one.
	MaxTokens int
}

// AnthropicProvider implements Provider on the Anthropic SDK.
type AnthropicProvider struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int
	tracker   *TokenTracker
}

// NewAnthropicProvider creates a new Anthropic-backed provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// Model returns the configured default model.
func (p *AnthropicProvider) Model() anthropic.Model {
	return p.model
}

// Tracker returns the token tracker for this provider.
func (p *AnthropicProvider) Tracker() *TokenTracker {
	return p.tracker
}

// Call makes a single blocking request.
func (p *AnthropicProvider) Call(ctx context.Context, req Request) (*Response, error) {
	params := p.buildParams(req)

	resp, err := p.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	p.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	out := &Response{
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += variant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolUse{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: variant.Input,
			})
		}
	}
	return out, nil
}

// Stream makes a request and delivers incremental text chunks to fn.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, fn func(chunk string)) (*Response, error) {
	params := p.buildParams(req)

	stream := p.inner.Messages.NewStreaming(ctx, params)
	acc := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream event: %w", err)
		}
		if variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && fn != nil {
				fn(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream failed: %w", err)
	}

	p.tracker.Add(acc.Usage.InputTokens, acc.Usage.OutputTokens)

	out := &Response{
		Usage: Usage{
			InputTokens:  acc.Usage.InputTokens,
			OutputTokens: acc.Usage.OutputTokens,
		},
	}
	for _, block := range acc.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += variant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolUse{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: variant.Input,
			})
		}
	}
	return out, nil
}

// buildParams converts an engine Request into SDK message params.
func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	model := p.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.ToolChoice != "" {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice},
		}
	}
	return params
}

// convertMessages maps engine messages onto SDK message params. System
// messages inside the history are folded into user turns; the Anthropic
// API only accepts user/assistant roles in the message list.
func convertMessages(msgs []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

// convertTools maps engine tool definitions onto SDK tool params.
func convertTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.InputSchema,
					Required:   t.Required,
				},
			},
		})
	}
	return out
}

// TokenTracker tracks token usage across provider calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from a provider call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of provider calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears all tracked token usage.
func (t *TokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok = 0
	t.outputTok = 0
	t.calls = 0
}
