package kernel

import (
	"context"
	"errors"
	"testing"
)

type hookHandlerFunc func(ctx context.Context, hctx *HookContext) error

func (f hookHandlerFunc) Handle(ctx context.Context, hctx *HookContext) error { return f(ctx, hctx) }

type fakeHookPlugin struct {
	fakePlugin
	hooks map[string]Hook
}

func (f *fakeHookPlugin) Hooks() map[string]Hook { return f.hooks }

func newHookPlugin(id string, priority int, point string, h hookHandlerFunc) *fakeHookPlugin {
	return &fakeHookPlugin{
		fakePlugin: fakePlugin{id: id, priority: priority, extends: []string{point}},
		hooks:      map[string]Hook{point: h},
	}
}

func buildKernel(t *testing.T, plugins ...Plugin) *Kernel {
	t.Helper()
	k := New()
	for _, p := range plugins {
		if err := k.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	return k
}

func TestRunHookInvokesInLoadOrder(t *testing.T) {
	var calls []string
	first := newHookPlugin("first", 1, HookOnMessageReceived, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "first")
		return nil
	})
	second := newHookPlugin("second", 10, HookOnMessageReceived, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "second")
		return nil
	})
	k := buildKernel(t, second, first)

	k.RunHook(context.Background(), HookOnMessageReceived, NewHookContext(), nil)

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("expected [first second] by priority order, got %v", calls)
	}
}

func TestRunHookAbortShortCircuitsChain(t *testing.T) {
	var calls []string
	aborting := newHookPlugin("aborting", 1, HookOnBeforeToolExec, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "aborting")
		hctx.Abort = true
		return nil
	})
	never := newHookPlugin("never", 10, HookOnBeforeToolExec, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "never")
		return nil
	})
	k := buildKernel(t, aborting, never)

	k.RunHook(context.Background(), HookOnBeforeToolExec, NewHookContext(), nil)

	if len(calls) != 1 || calls[0] != "aborting" {
		t.Fatalf("expected chain to stop after the aborting handler, got %v", calls)
	}
}

func TestRunHookIsolatesPanickingHandler(t *testing.T) {
	var calls []string
	panicking := newHookPlugin("panicking", 1, HookOnAfterSend, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "panicking")
		panic("boom")
	})
	survivor := newHookPlugin("survivor", 10, HookOnAfterSend, func(ctx context.Context, hctx *HookContext) error {
		calls = append(calls, "survivor")
		return nil
	})
	k := buildKernel(t, panicking, survivor)

	k.RunHook(context.Background(), HookOnAfterSend, NewHookContext(), nil)

	if len(calls) != 2 || calls[0] != "panicking" || calls[1] != "survivor" {
		t.Fatalf("expected both handlers to run despite the panic, got %v", calls)
	}
}

func TestRunHookDispatchesOnErrorWithoutRecursion(t *testing.T) {
	var onErrorCalls int
	failing := newHookPlugin("failing", 10, HookOnBeforeLLMCall, func(ctx context.Context, hctx *HookContext) error {
		return errors.New("boom")
	})
	errHandler := newHookPlugin("err-handler", 10, HookOnError, func(ctx context.Context, hctx *HookContext) error {
		onErrorCalls++
		// If dispatchError recursed, this handler failing would cause
		// infinite recursion; returning an error here proves it doesn't.
		return errors.New("error handler itself failed")
	})
	k := buildKernel(t, failing, errHandler)

	k.RunHook(context.Background(), HookOnBeforeLLMCall, NewHookContext(), nil)

	if onErrorCalls != 1 {
		t.Fatalf("expected on_error to run exactly once, got %d", onErrorCalls)
	}
}

func TestRunHookSkipsPluginsWithoutMatchingHandler(t *testing.T) {
	// A plugin that extends a point but whose Hooks() map lacks an entry
	// for it must be skipped, not panic on a nil map lookup.
	noHandler := &fakeHookPlugin{
		fakePlugin: fakePlugin{id: "bare", extends: []string{HookOnAfterToolExec}},
		hooks:      map[string]Hook{},
	}
	k := buildKernel(t, noHandler)

	// Must not panic.
	k.RunHook(context.Background(), HookOnAfterToolExec, NewHookContext(), nil)
}
