package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
)

type fakeProvider struct {
	resp *llm.Response
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, model string, maxTokens int) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestPluginHandleLeavesShortHistoryUntouched(t *testing.T) {
	p := New(&fakeProvider{})
	hctx := kernel.NewHookContext()
	history := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	hctx.Set("history", history)

	if err := p.Hooks()[kernel.HookTransformHistory].Handle(context.Background(), hctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got, _ := hctx.Get("history").([]llm.Message)
	if len(got) != len(history) {
		t.Fatalf("expected untouched history, got %d messages", len(got))
	}
}

func TestPluginHandleCompactsOverBudgetHistory(t *testing.T) {
	p := New(&fakeProvider{resp: &llm.Response{Content: "condensed"}})

	var history []llm.Message
	history = append(history, llm.Message{Role: llm.RoleSystem, Content: "system prompt"})
	filler := strings.Repeat("x", CharsPerToken*200)
	for i := 0; i < 80; i++ {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: filler})
		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: filler})
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: "final question"})

	hctx := kernel.NewHookContext()
	hctx.Set("history", history)

	if err := p.Hooks()[kernel.HookTransformHistory].Handle(context.Background(), hctx); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got, _ := hctx.Get("history").([]llm.Message)
	if len(got) >= len(history) {
		t.Fatalf("expected compacted history to be shorter, got %d vs original %d", len(got), len(history))
	}
	found := false
	for _, m := range got {
		if strings.Contains(m.Content, "condensed") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a message carrying the provider's summary")
	}
}

func TestPluginHandlePropagatesProviderError(t *testing.T) {
	p := New(&fakeProvider{err: errTest("boom")})

	var history []llm.Message
	history = append(history, llm.Message{Role: llm.RoleSystem, Content: "system"})
	filler := strings.Repeat("x", CharsPerToken*200)
	for i := 0; i < 80; i++ {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: filler})
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: "final"})

	hctx := kernel.NewHookContext()
	hctx.Set("history", history)

	if err := p.Hooks()[kernel.HookTransformHistory].Handle(context.Background(), hctx); err == nil {
		t.Fatal("expected Handle to propagate the provider error")
	}
}
