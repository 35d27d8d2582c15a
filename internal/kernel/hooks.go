package kernel

import (
	"context"
	"fmt"
	"log/slog"
)

// HookContext is the mutable bag of state threaded through one hook chain
// invocation. Hooks read and write keyed fields (message, response, system
// prompt, history, tool call, tool result, error) depending on which chain
// they run in; setting Abort true short-circuits the remaining hooks in the
// chain for this invocation only.
type HookContext struct {
	Values map[string]any
	Abort  bool
}

// NewHookContext returns an empty context ready for use in one chain run.
func NewHookContext() *HookContext {
	return &HookContext{Values: make(map[string]any)}
}

// Get returns the value stored under key, or nil if absent.
func (c *HookContext) Get(key string) any { return c.Values[key] }

// Set stores value under key.
func (c *HookContext) Set(key string, value any) { c.Values[key] = value }

// The eleven extension points a plugin may implement. These names are the
// closed set the orchestrator dispatches; RunHook itself does not check a
// point name against this list.
const (
	HookOnMessageReceived   = "on_message_received"
	HookTransformSystem     = "transform_system_prompt"
	HookTransformHistory    = "transform_history"
	HookOnBeforeLLMCall     = "on_before_llm_call"
	HookOnAfterLLMCall      = "on_after_llm_call"
	HookOnBeforeToolExec    = "on_before_tool_exec"
	HookOnAfterToolExec     = "on_after_tool_exec"
	HookTransformResponse   = "transform_response"
	HookOnBeforeSend        = "on_before_send"
	HookOnAfterSend         = "on_after_send"
	HookOnError             = "on_error"
)

// Hook is implemented by a plugin that wants to participate in a named
// extension point. One plugin can implement several hooks; Handle is not
// given the extension-point name, so a plugin supplies one Hook value per
// point (typically a small adapter) in its Hooks() map.
type Hook interface {
	Handle(ctx context.Context, hctx *HookContext) error
}

// hookPlugin is satisfied by a Plugin that also exposes named hook
// handlers. Plugins implement it by returning themselves (or an adapter)
// from Hooks() keyed by extension-point name for every entry in their
// Meta().Extends.
type hookPlugin interface {
	Plugin
	Hooks() map[string]Hook
}

// RunHook invokes, in load order, every plugin whose Hooks() map has a
// handler for point; Meta().Extends is not consulted.
// A handler that sets hctx.Abort true stops the chain immediately — the
// caller inspects hctx to decide how to proceed (e.g. the orchestrator
// using an on_before_tool_exec abort_message as the tool result). A
// handler that panics or returns an error is isolated: the kernel recovers
// it, logs it, dispatches a synthetic on_error chain (never recursively,
// even if point is already on_error), and continues with the next handler.
func (k *Kernel) RunHook(ctx context.Context, point string, hctx *HookContext, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, id := range k.order {
		hp, ok := k.plugins[id].(hookPlugin)
		if !ok {
			continue
		}
		handler, ok := hp.Hooks()[point]
		if !ok {
			continue
		}
		if err := k.callHandler(ctx, handler, hctx); err != nil {
			logger.Error("hook failed", "plugin", id, "hook", point, "error", err)
			if point != HookOnError {
				k.dispatchError(ctx, id, point, err, logger)
			}
		}
		if hctx.Abort {
			return
		}
	}
}

// callHandler recovers a panic from handler.Handle and turns it into an
// error so one misbehaving plugin cannot take down the orchestrator loop.
func (k *Kernel) callHandler(ctx context.Context, handler Hook, hctx *HookContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return handler.Handle(ctx, hctx)
}

// dispatchError runs the on_error chain once, non-recursively, for a
// failure observed in another hook point.
func (k *Kernel) dispatchError(ctx context.Context, failedPlugin, failedPoint string, cause error, logger *slog.Logger) {
	errCtx := NewHookContext()
	errCtx.Set("source_plugin", failedPlugin)
	errCtx.Set("source_hook", failedPoint)
	errCtx.Set("error", cause)
	k.RunHook(ctx, HookOnError, errCtx, logger)
}
