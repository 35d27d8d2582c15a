// Package anthropic implements the llm.Provider capability against the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
)

const defaultModel = anthropic.ModelClaudeSonnet4_5

// Provider adapts the Anthropic SDK to llm.Provider.
type Provider struct {
	client       anthropic.Client
	defaultModel string
}

// New returns an Anthropic provider. An empty apiKey defers to the SDK's
// own ANTHROPIC_API_KEY environment lookup.
func New(apiKey, defaultModelOverride string) *Provider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	model := string(defaultModel)
	if defaultModelOverride != "" {
		model = defaultModelOverride
	}
	return &Provider{client: anthropic.NewClient(opts...), defaultModel: model}
}

func (p *Provider) Meta() kernel.Meta {
	return kernel.Meta{ID: "llm-anthropic", Version: "1.0.0", Implements: []string{"llm"}}
}

func (p *Provider) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (p *Provider) Start(ctx context.Context) error                        { return nil }
func (p *Provider) Stop(ctx context.Context) error                         { return nil }

func (p *Provider) Name() string { return "anthropic" }

// Chat maps the provider-agnostic message/tool shapes onto the Messages
// API's system-block + turn-list + tool-schema conventions.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, model string, maxTokens int) (*llm.Response, error) {
	if model == "" {
		model = p.defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	var system string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case llm.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(args), tc.Name))
			}
			turns = append(turns, anthropic.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			turns = append(turns, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}

	apiTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Schema},
			},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(apiTools) > 0 {
		params.Tools = apiTools
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: chat: %w", err)
	}

	out := &llm.Response{Model: string(resp.Model)}
	out.Usage = llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += variant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: json.RawMessage(variant.Input),
			})
		}
	}
	return out, nil
}
