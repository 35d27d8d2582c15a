// Package openaicompat implements the llm.Provider capability against any
// OpenAI-compatible chat completions endpoint: OpenAI itself, or a local
// Ollama/vLLM server reached via BaseURL.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
)

const defaultModel = openai.GPT4o

// Provider adapts go-openai's chat completion client to llm.Provider.
type Provider struct {
	client       *openai.Client
	defaultModel string
}

// New returns a provider. baseURL overrides the default OpenAI endpoint,
// e.g. "http://localhost:11434/v1" for an Ollama server.
func New(apiKey, baseURL, defaultModelOverride string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	model := defaultModel
	if defaultModelOverride != "" {
		model = defaultModelOverride
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), defaultModel: model}
}

func (p *Provider) Meta() kernel.Meta {
	return kernel.Meta{ID: "llm-openaicompat", Version: "1.0.0", Implements: []string{"llm"}}
}

func (p *Provider) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (p *Provider) Start(ctx context.Context) error                        { return nil }
func (p *Provider) Stop(ctx context.Context) error                         { return nil }

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, model string, maxTokens int) (*llm.Response, error) {
	if model == "" {
		model = p.defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case llm.RoleSystem:
			msg.Role = openai.ChatMessageRoleSystem
		case llm.RoleUser:
			msg.Role = openai.ChatMessageRoleUser
		case llm.RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
		case llm.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openaicompat: chat: no choices returned")
	}

	choice := resp.Choices[0].Message
	out := &llm.Response{
		Content: choice.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		var args any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = tc.Function.Arguments
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
