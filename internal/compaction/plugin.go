package compaction

import (
	"context"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
)

const summarizePrompt = "Summarize the following conversation history concisely, preserving facts, decisions, and open threads a continuation would need."

// Plugin is the transform_history hook adapter: once the seeded history
// exceeds MaxTokens it replaces the older portion with an LLM-generated
// summary, leaving the most recent messages verbatim.
type Plugin struct {
	provider llm.Provider
	model    string
}

// New returns a compaction plugin that summarizes through provider.
func New(provider llm.Provider) *Plugin {
	return &Plugin{provider: provider}
}

func (p *Plugin) Meta() kernel.Meta {
	return kernel.Meta{
		ID:       "compaction",
		Version:  "1.0.0",
		Priority: -40,
		Extends:  []string{kernel.HookTransformHistory},
	}
}

func (p *Plugin) Configure(ctx context.Context, cfg map[string]any) error {
	if v, ok := cfg["model"].(string); ok && v != "" {
		p.model = v
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

func (p *Plugin) Hooks() map[string]kernel.Hook {
	return map[string]kernel.Hook{
		kernel.HookTransformHistory: historyHook{p},
	}
}

type historyHook struct{ p *Plugin }

func (h historyHook) Handle(ctx context.Context, hctx *kernel.HookContext) error {
	history, _ := hctx.Get("history").([]llm.Message)
	if len(history) == 0 {
		return nil
	}
	compacted, err := Compact(ctx, history, h.p.summarize)
	if err != nil {
		return err
	}
	hctx.Set("history", compacted)
	return nil
}

// summarize asks the configured provider to condense older as a single
// system-role message's content.
func (p *Plugin) summarize(ctx context.Context, older []llm.Message) (string, error) {
	convo := make([]llm.Message, 0, len(older)+1)
	convo = append(convo, llm.Message{Role: llm.RoleSystem, Content: summarizePrompt})
	convo = append(convo, older...)

	resp, err := p.provider.Chat(ctx, convo, nil, p.model, 1024)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
