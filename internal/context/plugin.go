// Package context defines the plugin that seeds every respond() call's
// system prompt and history. Because the kernel's hook chain already runs
// every implementer of a given extension point in load order, a "soul"
// prompt plugin and this one can both implement transform_system_prompt —
// their contributions concatenate automatically without a separate
// sub-registration mechanism.
package context

import (
	"context"
	"strings"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
)

// Plugin contributes a static system prompt and a static set of leading
// history messages — e.g. operating instructions loaded from the workspace
// — to every respond() call.
type Plugin struct {
	systemPrompt string
	history      []llm.Message
}

// New returns a context plugin seeded with systemPrompt and history.
func New(systemPrompt string, history []llm.Message) *Plugin {
	return &Plugin{systemPrompt: systemPrompt, history: history}
}

func (p *Plugin) Meta() kernel.Meta {
	return kernel.Meta{
		ID:       "context",
		Version:  "1.0.0",
		Priority: -50,
		Extends:  []string{kernel.HookTransformSystem, kernel.HookTransformHistory},
	}
}

func (p *Plugin) Configure(ctx context.Context, cfg map[string]any) error {
	if v, ok := cfg["system_prompt"].(string); ok && v != "" {
		p.systemPrompt = v
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

func (p *Plugin) Hooks() map[string]kernel.Hook {
	return map[string]kernel.Hook{
		kernel.HookTransformSystem:  systemHook{p},
		kernel.HookTransformHistory: historyHook{p},
	}
}

type systemHook struct{ p *Plugin }

func (h systemHook) Handle(ctx context.Context, hctx *kernel.HookContext) error {
	if h.p.systemPrompt == "" {
		return nil
	}
	existing, _ := hctx.Get("system_prompt").(string)
	hctx.Set("system_prompt", joinNonEmpty(existing, h.p.systemPrompt))
	return nil
}

type historyHook struct{ p *Plugin }

func (h historyHook) Handle(ctx context.Context, hctx *kernel.HookContext) error {
	if len(h.p.history) == 0 {
		return nil
	}
	existing, _ := hctx.Get("history").([]llm.Message)
	hctx.Set("history", append(append([]llm.Message{}, h.p.history...), existing...))
	return nil
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
