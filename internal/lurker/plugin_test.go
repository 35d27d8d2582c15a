package lurker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

type fakeObserverPlugin struct {
	id        string
	observed  []string // channelID per call
	returnErr error
}

func (f *fakeObserverPlugin) Meta() kernel.Meta {
	return kernel.Meta{ID: f.id, Version: "0.0.1", Extends: []string{ObserveExtensionPoint}}
}
func (f *fakeObserverPlugin) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (f *fakeObserverPlugin) Start(ctx context.Context) error                        { return nil }
func (f *fakeObserverPlugin) Stop(ctx context.Context) error                          { return nil }

func (f *fakeObserverPlugin) Observe(ctx context.Context, direction, channelType, channelID string, msg any) error {
	f.observed = append(f.observed, channelID)
	return f.returnErr
}

func buildKernelWithLurker(t *testing.T, p *Plugin, extra ...kernel.Plugin) *kernel.Kernel {
	t.Helper()
	k := kernel.New()
	if err := k.Register(p); err != nil {
		t.Fatalf("Register lurker: %v", err)
	}
	for _, e := range extra {
		if err := k.Register(e); err != nil {
			t.Fatalf("Register extra: %v", err)
		}
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	return k
}

func TestObserveReceiveIncrementsPerChannelCounter(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, false, false, nil)
	buildKernelWithLurker(t, p)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "room-1"}
	if err := p.ObserveReceive(context.Background(), msg); err != nil {
		t.Fatalf("ObserveReceive: %v", err)
	}
	if err := p.ObserveReceive(context.Background(), msg); err != nil {
		t.Fatalf("ObserveReceive (second): %v", err)
	}
	if got := p.Count("room-1"); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}

func TestObserveReceiveSkipsChannelOutsideAllowlist(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, true, false, nil)
	k := buildKernelWithLurker(t, p)
	_ = k
	if err := p.Configure(context.Background(), map[string]any{"channels": []string{"room-1"}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := p.ObserveReceive(context.Background(), &messages.Incoming{ChannelType: "telegram", ChannelID: "room-2"}); err != nil {
		t.Fatalf("ObserveReceive: %v", err)
	}
	if got := p.Count("room-2"); got != 0 {
		t.Fatalf("expected room-2 to be skipped, got count %d", got)
	}

	if err := p.ObserveReceive(context.Background(), &messages.Incoming{ChannelType: "telegram", ChannelID: "room-1"}); err != nil {
		t.Fatalf("ObserveReceive: %v", err)
	}
	if got := p.Count("room-1"); got != 1 {
		t.Fatalf("expected room-1 to be observed, got count %d", got)
	}
}

func TestObserveReceiveWritesJSONLSink(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, true, false, nil)
	buildKernelWithLurker(t, p)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "room-1", Content: "hi"}
	if err := p.ObserveReceive(context.Background(), msg); err != nil {
		t.Fatalf("ObserveReceive: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one day directory, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name(), "room-1.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty jsonl entry")
	}
}

func TestObserveDispatchesToExtensionPointImplementers(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, false, false, nil)
	downstream := &fakeObserverPlugin{id: "downstream"}
	k := buildKernelWithLurker(t, p, downstream)
	p.k = k

	if err := p.ObserveSend(context.Background(), &messages.Outgoing{ChannelType: "telegram", ChannelID: "room-1"}); err != nil {
		t.Fatalf("ObserveSend: %v", err)
	}
	if len(downstream.observed) != 1 || downstream.observed[0] != "room-1" {
		t.Fatalf("expected downstream observer to be called with room-1, got %v", downstream.observed)
	}
}

func TestObserveDispatchPropagatesImplementerError(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, false, false, nil)
	downstream := &fakeObserverPlugin{id: "downstream", returnErr: errTest("boom")}
	k := buildKernelWithLurker(t, p, downstream)
	p.k = k

	err := p.ObserveReceive(context.Background(), &messages.Incoming{ChannelType: "telegram", ChannelID: "room-1"})
	if err == nil {
		t.Fatal("expected ObserveReceive to propagate the downstream observer's error")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
