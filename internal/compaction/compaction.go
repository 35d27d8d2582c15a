// Package compaction keeps a conversation's history under a token budget by
// summarizing the older portion with the LLM and keeping the rest verbatim.
// Token counts are approximated from character length rather than a real
// tokenizer, which is accurate enough to decide when to compact and cheap
// enough to run on every respond() call.
package compaction

import (
	"context"
	"fmt"

	"github.com/cobot-run/cobot/internal/llm"
)

const (
	// CharsPerToken approximates one token as this many characters.
	CharsPerToken = 4

	// MaxTokens is the budget a conversation must fit under before
	// compaction triggers.
	MaxTokens = 12000

	// TargetRecentTokens is how much of the tail Compact tries to keep
	// verbatim once it decides to compact.
	TargetRecentTokens = 4000
)

func estimateTokens(s string) int {
	return len(s) / CharsPerToken
}

func estimateMessageTokens(m llm.Message) int {
	return estimateTokens(string(m.Role)) + estimateTokens(m.Content)
}

// Summarizer calls the LLM to produce a condensed summary of a slice of
// older messages. It is injected so compaction doesn't import a concrete
// provider.
type Summarizer func(ctx context.Context, messages []llm.Message) (string, error)

// Compact returns convo unchanged if it already fits under MaxTokens.
// Otherwise it keeps the leading system message and the trailing user
// message fixed, walks back from the end accumulating messages until
// TargetRecentTokens is reached (the "recent" tail), summarizes everything
// between the system message and that tail, and returns
// [system, syntheticSummary, ...recent, finalUser].
func Compact(ctx context.Context, convo []llm.Message, summarize Summarizer) ([]llm.Message, error) {
	total := 0
	for _, m := range convo {
		total += estimateMessageTokens(m)
	}
	if total <= MaxTokens || len(convo) < 3 {
		return convo, nil
	}

	// Fixed endpoints: leading system message, trailing user message.
	hasSystem := len(convo) > 0 && convo[0].Role == llm.RoleSystem
	lastIdx := len(convo) - 1
	finalUser := convo[lastIdx]

	start := 1
	if !hasSystem {
		start = 0
	}

	// Walk back from just before the final user message, accumulating
	// until we've kept TargetRecentTokens worth of the tail.
	recentTokens := 0
	splitIdx := lastIdx
	for i := lastIdx - 1; i >= start; i-- {
		t := estimateMessageTokens(convo[i])
		if recentTokens+t > TargetRecentTokens {
			splitIdx = i + 1
			break
		}
		recentTokens += t
		splitIdx = i
	}
	if splitIdx <= start {
		// Nothing old enough to summarize; nothing to do.
		return convo, nil
	}

	older := convo[start:splitIdx]
	recent := convo[splitIdx:lastIdx]

	summary, err := summarize(ctx, older)
	if err != nil {
		return nil, fmt.Errorf("compaction: summarize: %w", err)
	}

	out := make([]llm.Message, 0, len(recent)+3)
	if hasSystem {
		out = append(out, convo[0])
	}
	out = append(out, llm.Message{
		Role:    llm.RoleSystem,
		Content: "Summary of earlier conversation:\n" + summary,
	})
	out = append(out, recent...)
	out = append(out, finalUser)
	return out, nil
}
