// Package orchestrator drives the outer poll loop, per-message dispatch,
// and the bounded LLM/tool round loop ("respond") that turns one inbound
// message into zero or more outbound ones.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cobot-run/cobot/internal/channels"
	"github.com/cobot-run/cobot/internal/errs"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
	"github.com/cobot-run/cobot/internal/messages"
	"github.com/cobot-run/cobot/internal/metrics"
	"github.com/cobot-run/cobot/internal/observability"
)

const maxToolRounds = 10

// Options configures one Orchestrator.
type Options struct {
	PollInterval time.Duration
	Model        string
	MaxTokens    int
	Logger       *slog.Logger
	Metrics      *metrics.Metrics      // optional; nil disables instrumentation
	Tracer       *observability.Tracer // optional; nil yields no-op spans
}

// Orchestrator owns the kernel, the communication hub, and the dedup set,
// and runs the poll → dispatch → respond cycle.
type Orchestrator struct {
	k      *kernel.Kernel
	hub    *channels.Hub
	dedup  *dedupSet
	llm    llm.Provider
	tools  map[string]llm.Tool
	opts   Options
	logger *slog.Logger
}

// New builds an Orchestrator. provider and tools are fixed at construction
// and never looked up through k; provider is called on every respond and
// must be non-nil, while tools may be nil or empty.
func New(k *kernel.Kernel, provider llm.Provider, tools map[string]llm.Tool, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		k:      k,
		hub:    channels.NewHub(k),
		dedup:  newDedupSet(),
		llm:    provider,
		tools:  tools,
		opts:   opts,
		logger: logger,
	}
}

// RunLoop polls on Options.PollInterval until ctx is cancelled. A cycle
// that is still busy dispatching messages when the next tick arrives skips
// that tick rather than overlapping — after each cycle the loop sleeps only
// the remainder of the interval, or not at all if the cycle overran it.
func (o *Orchestrator) RunLoop(ctx context.Context) {
	interval := o.opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		start := time.Now()
		o.cycle(ctx)
		elapsed := time.Since(start)
		if elapsed < interval {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval - elapsed):
			}
		}
	}
}

// cycle polls every channel once and dispatches each resulting message
// concurrently, isolating per-message failures.
func (o *Orchestrator) cycle(ctx context.Context) {
	ctx, span := o.opts.Tracer.Start(ctx, "communication.poll")
	defer span.End()

	incoming, pollErrs := o.hub.Poll(ctx)
	for _, err := range pollErrs {
		o.logger.Error("poll failed", "error", err)
	}

	var wg sync.WaitGroup
	for _, msg := range incoming {
		wg.Add(1)
		go func(msg *messages.Incoming) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("panic handling message", "panic", r, "channel", msg.ChannelType, "channel_id", msg.ChannelID)
				}
			}()
			o.HandleMessage(ctx, msg)
		}(msg)
	}
	wg.Wait()
}

// HandleMessage applies the dedup gate, runs on_message_received, and if
// the message was not aborted, calls Respond and sends the result back
// through the hub.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg *messages.Incoming) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.MessagesReceived.Inc()
	}
	if o.dedup.SeenOrAdd(msg.DedupKey()) {
		if o.opts.Metrics != nil {
			o.opts.Metrics.MessagesDeduped.Inc()
		}
		return
	}

	hctx := kernel.NewHookContext()
	hctx.Set("message", msg)
	o.k.RunHook(ctx, kernel.HookOnMessageReceived, hctx, o.logger)
	if hctx.Abort {
		if reply, ok := hctx.Get("pairing_reply").(string); ok && reply != "" {
			o.sendReply(ctx, msg, reply)
		}
		return
	}

	reply := o.Respond(ctx, msg)
	if reply == "" {
		return
	}
	o.sendReply(ctx, msg, reply)
}

// sendReply wraps content in an Outgoing addressed back to msg's origin and
// runs it through on_before_send / send / on_after_send.
func (o *Orchestrator) sendReply(ctx context.Context, msg *messages.Incoming, content string) {
	out := &messages.Outgoing{
		ChannelType: msg.ChannelType,
		ChannelID:   msg.ChannelID,
		Content:     content,
		ReplyTo:     msg.ID,
	}

	sendCtx := kernel.NewHookContext()
	sendCtx.Set("message", out)
	o.k.RunHook(ctx, kernel.HookOnBeforeSend, sendCtx, o.logger)
	if sendCtx.Abort {
		return
	}

	if err := o.hub.Send(ctx, out); err != nil {
		o.logger.Error("send failed", "error", err, "channel", out.ChannelType)
		return
	}

	afterCtx := kernel.NewHookContext()
	afterCtx.Set("message", out)
	o.k.RunHook(ctx, kernel.HookOnAfterSend, afterCtx, o.logger)
}

// Respond runs the seed → transform_system_prompt → transform_history →
// up-to-maxToolRounds LLM/tool loop → transform_response pipeline and
// returns the final text to send back. It never raises on an LLM failure:
// an LLMError is surfaced as "Error: <msg>" text instead.
func (o *Orchestrator) Respond(ctx context.Context, msg *messages.Incoming) string {
	ctx, span := o.opts.Tracer.Start(ctx, "respond")
	o.opts.Tracer.SetAttributes(span, "channel", msg.ChannelType, "channel_id", msg.ChannelID)
	defer span.End()

	sysCtx := kernel.NewHookContext()
	sysCtx.Set("system_prompt", "")
	o.k.RunHook(ctx, kernel.HookTransformSystem, sysCtx, o.logger)
	systemPrompt, _ := sysCtx.Get("system_prompt").(string)

	histCtx := kernel.NewHookContext()
	histCtx.Set("history", []llm.Message{})
	o.k.RunHook(ctx, kernel.HookTransformHistory, histCtx, o.logger)
	history, _ := histCtx.Get("history").([]llm.Message)

	convo := make([]llm.Message, 0, len(history)+2)
	convo = append(convo, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	convo = append(convo, history...)
	convo = append(convo, llm.Message{Role: llm.RoleUser, Content: msg.Content})

	var specs []llm.ToolSpec
	for _, t := range o.tools {
		specs = append(specs, t.Spec())
	}

	for round := 0; round < maxToolRounds; round++ {
		beforeCtx := kernel.NewHookContext()
		beforeCtx.Set("messages", convo)
		o.k.RunHook(ctx, kernel.HookOnBeforeLLMCall, beforeCtx, o.logger)
		if m, ok := beforeCtx.Get("messages").([]llm.Message); ok {
			convo = m
		}

		callStart := time.Now()
		resp, err := o.llm.Chat(ctx, convo, specs, o.opts.Model, o.opts.MaxTokens)
		if o.opts.Metrics != nil {
			o.opts.Metrics.LLMCalls.Inc()
			o.opts.Metrics.LLMCallSeconds.Observe(time.Since(callStart).Seconds())
		}
		if err != nil {
			return fmt.Sprintf("Error: %s", (&errs.LLMError{Provider: o.llm.Name(), Err: err}).Error())
		}

		afterCtx := kernel.NewHookContext()
		afterCtx.Set("response", resp)
		o.k.RunHook(ctx, kernel.HookOnAfterLLMCall, afterCtx, o.logger)
		if r, ok := afterCtx.Get("response").(*llm.Response); ok {
			resp = r
		}

		if len(resp.ToolCalls) == 0 {
			content := resp.Content
			if content == "" {
				content = "(no response)"
			}
			return o.transformResponse(ctx, content)
		}

		convo = append(convo, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			args := normalizeArguments(call.Arguments)

			beforeTool := kernel.NewHookContext()
			beforeTool.Set("tool_call", call)
			beforeTool.Set("arguments", args)
			o.k.RunHook(ctx, kernel.HookOnBeforeToolExec, beforeTool, o.logger)

			var resultText string
			var isError bool
			if beforeTool.Abort {
				if msg, ok := beforeTool.Get("abort_message").(string); ok {
					resultText = msg
				} else {
					resultText = "tool execution aborted"
				}
				isError = true
			} else {
				tool, ok := o.tools[call.Name]
				if !ok {
					resultText = fmt.Sprintf("unknown tool %q", call.Name)
					isError = true
				} else {
					result, err := tool.Execute(ctx, args)
					if err != nil {
						resultText = (&errs.ToolError{Tool: call.Name, Err: err}).Error()
						isError = true
					} else {
						resultText = result.Content
						isError = result.IsError
					}
				}
			}

			afterTool := kernel.NewHookContext()
			afterTool.Set("tool_call", call)
			afterTool.Set("result", resultText)
			afterTool.Set("is_error", isError)
			o.k.RunHook(ctx, kernel.HookOnAfterToolExec, afterTool, o.logger)
			if r, ok := afterTool.Get("result").(string); ok {
				resultText = r
			}

			convo = append(convo, llm.Message{Role: llm.RoleTool, Content: resultText, ToolCallID: call.ID})
		}
	}

	return o.transformResponse(ctx, "(reached maximum tool rounds without a final response)")
}

func (o *Orchestrator) transformResponse(ctx context.Context, content string) string {
	respCtx := kernel.NewHookContext()
	respCtx.Set("response", content)
	o.k.RunHook(ctx, kernel.HookTransformResponse, respCtx, o.logger)
	if s, ok := respCtx.Get("response").(string); ok {
		return s
	}
	return content
}

// normalizeArguments accepts either a JSON string or an already-decoded
// map (providers differ on which they send) and returns a plain map.
func normalizeArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return map[string]any{}
		}
		return out
	case json.RawMessage:
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return map[string]any{}
		}
		return out
	default:
		return map[string]any{}
	}
}
