package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/cobot-run/cobot/internal/llm"
)

func TestCompactLeavesUnderBudgetConversationUnchanged(t *testing.T) {
	convo := []llm.Message{
		{Role: llm.RoleSystem, Content: "you are a helpful assistant"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "how are you"},
	}

	called := false
	summarize := func(ctx context.Context, msgs []llm.Message) (string, error) {
		called = true
		return "summary", nil
	}

	out, err := Compact(context.Background(), convo, summarize)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if called {
		t.Fatal("expected summarize not to be called for an under-budget conversation")
	}
	if len(out) != len(convo) {
		t.Fatalf("expected conversation to pass through unchanged, got %d messages", len(out))
	}
}

func TestCompactSummarizesOverBudgetConversation(t *testing.T) {
	var convo []llm.Message
	convo = append(convo, llm.Message{Role: llm.RoleSystem, Content: "system prompt"})

	// Pad with enough older turns to exceed MaxTokens.
	filler := strings.Repeat("x", CharsPerToken*200) // ~200 tokens per message
	for i := 0; i < 80; i++ {
		convo = append(convo, llm.Message{Role: llm.RoleUser, Content: filler})
		convo = append(convo, llm.Message{Role: llm.RoleAssistant, Content: filler})
	}
	convo = append(convo, llm.Message{Role: llm.RoleUser, Content: "final question"})

	var summarizedCount int
	summarize := func(ctx context.Context, msgs []llm.Message) (string, error) {
		summarizedCount = len(msgs)
		return "condensed history", nil
	}

	out, err := Compact(context.Background(), convo, summarize)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if summarizedCount == 0 {
		t.Fatal("expected summarize to be called with the older portion")
	}

	if out[0].Role != llm.RoleSystem || out[0].Content != "system prompt" {
		t.Fatalf("expected leading system message preserved, got %+v", out[0])
	}
	if !strings.Contains(out[1].Content, "condensed history") {
		t.Fatalf("expected synthetic summary message, got %+v", out[1])
	}
	last := out[len(out)-1]
	if last.Content != "final question" {
		t.Fatalf("expected trailing user message preserved, got %+v", last)
	}

	var total int
	for _, m := range out {
		total += estimateMessageTokens(m)
	}
}

func TestCompactPropagatesSummarizerError(t *testing.T) {
	var convo []llm.Message
	convo = append(convo, llm.Message{Role: llm.RoleSystem, Content: "system"})
	filler := strings.Repeat("x", CharsPerToken*200)
	for i := 0; i < 80; i++ {
		convo = append(convo, llm.Message{Role: llm.RoleUser, Content: filler})
	}
	convo = append(convo, llm.Message{Role: llm.RoleUser, Content: "final"})

	boom := errTest("boom")
	summarize := func(ctx context.Context, msgs []llm.Message) (string, error) {
		return "", boom
	}

	if _, err := Compact(context.Background(), convo, summarize); err == nil {
		t.Fatal("expected Compact to propagate the summarizer error")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestCompactSkipsShortConversations(t *testing.T) {
	convo := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}
	called := false
	summarize := func(ctx context.Context, msgs []llm.Message) (string, error) {
		called = true
		return "x", nil
	}
	out, err := Compact(context.Background(), convo, summarize)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if called {
		t.Fatal("expected summarize not to run for a conversation under the 3-message floor")
	}
	if len(out) != 2 {
		t.Fatalf("expected unchanged conversation, got %d messages", len(out))
	}
}
