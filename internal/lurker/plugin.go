// Package lurker implements a pure-observer plugin: it watches every
// inbound and outbound message and optionally archives them, but it never
// aborts a hook chain and never produces a reply itself. This resolves the
// design's open question in favor of an observer rather than a responder —
// a lurker that could also answer would need its own authorization and
// LLM-loop semantics, which is a different component.
package lurker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cobot-run/cobot/internal/channels"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// ObserveExtensionPoint is the Meta().Extends value a plugin registers
// under to be told about every message lurker records, after lurker's own
// sinks have run. It lets downstream plugins hook observed traffic without
// coupling to lurker's storage format.
const ObserveExtensionPoint = "lurker.on_observe"

// Observer is implemented by a plugin that wants a callback for every
// message lurker observes.
type Observer interface {
	Observe(ctx context.Context, direction, channelType, channelID string, msg any) error
}

// Sink persists one observed message under dir, the per-day directory the
// plugin has already created.
type Sink interface {
	Observe(dir, direction, channelID string, msg any) error
}

// Plugin observes session.on_receive and session.on_send via the channels
// package's observer extension points — independent of the orchestrator's
// own hook chain, so a pairing abort never hides traffic from it — and
// never calls Send or Receive itself.
type Plugin struct {
	k       *kernel.Kernel
	baseDir string
	sinks   []Sink

	channels map[string]bool // observed channel_ids; empty set observes every channel

	mu     sync.Mutex
	counts map[string]int // per-channel_id observation count
}

// New returns a lurker writing under baseDir through whichever of the
// jsonl/markdown sinks are enabled, dispatching ObserveExtensionPoint
// through k once a message is recorded.
func New(baseDir string, jsonlSink, markdownSink bool, k *kernel.Kernel) *Plugin {
	p := &Plugin{baseDir: baseDir, k: k, counts: map[string]int{}}
	if jsonlSink {
		p.sinks = append(p.sinks, jsonlFileSink{})
	}
	if markdownSink {
		p.sinks = append(p.sinks, markdownFileSink{})
	}
	return p
}

func (p *Plugin) Meta() kernel.Meta {
	return kernel.Meta{
		ID:      "lurker",
		Version: "1.0.0",
		Extends: []string{channels.OnReceiveExtensionPoint, channels.OnSendExtensionPoint},
	}
}

func (p *Plugin) Configure(ctx context.Context, cfg map[string]any) error {
	if v, ok := cfg["base_dir"].(string); ok && v != "" {
		p.baseDir = v
	}
	p.channels = map[string]bool{}
	for _, ch := range stringSlice(cfg["channels"]) {
		p.channels[ch] = true
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

// ObserveReceive implements channels.ReceiveObserver.
func (p *Plugin) ObserveReceive(ctx context.Context, msg *messages.Incoming) error {
	return p.record(ctx, "inbound", msg.ChannelType, msg.ChannelID, msg)
}

// ObserveSend implements channels.SendObserver.
func (p *Plugin) ObserveSend(ctx context.Context, msg *messages.Outgoing) error {
	return p.record(ctx, "outbound", msg.ChannelType, msg.ChannelID, msg)
}

// Count returns how many messages have been observed on channelID so far.
func (p *Plugin) Count(channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[channelID]
}

// record fans msg out to every enabled sink under
// <baseDir>/YYYY-MM-DD/<channelID>.*, increments channelID's counter, and
// invokes ObserveExtensionPoint implementers. A channelID outside the
// configured allowlist (when one is configured) is skipped entirely: no
// sink write, no counter increment, no dispatch.
func (p *Plugin) record(ctx context.Context, direction, channelType, channelID string, msg any) error {
	if len(p.channels) > 0 && !p.channels[channelID] {
		return nil
	}

	p.mu.Lock()
	p.counts[channelID]++
	p.mu.Unlock()

	if p.baseDir != "" && len(p.sinks) > 0 {
		day := time.Now().UTC().Format("2006-01-02")
		dir := filepath.Join(p.baseDir, day)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, s := range p.sinks {
			if err := s.Observe(dir, direction, channelID, msg); err != nil {
				return err
			}
		}
	}

	if p.k == nil {
		return nil
	}
	for _, impl := range p.k.GetImplementations(ObserveExtensionPoint) {
		obs, ok := impl.Plugin.(Observer)
		if !ok {
			continue
		}
		if err := obs.Observe(ctx, direction, channelType, channelID, msg); err != nil {
			return fmt.Errorf("lurker.on_observe %q: %w", impl.PluginID, err)
		}
	}
	return nil
}

// stringSlice accepts either a []string or a []any of strings (YAML
// decodes sequences under map[string]any as []any) and returns a []string.
func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// jsonlFileSink appends one JSON line per observed message.
type jsonlFileSink struct{}

func (jsonlFileSink) Observe(dir, direction, channelID string, msg any) error {
	line, err := json.Marshal(map[string]any{"direction": direction, "message": msg})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, channelID+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// markdownFileSink appends a human-readable transcript block.
type markdownFileSink struct{}

func (markdownFileSink) Observe(dir, direction, channelID string, msg any) error {
	f, err := os.OpenFile(filepath.Join(dir, channelID+".md"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "**%s** (%s)\n\n%v\n\n---\n\n", direction, time.Now().UTC().Format(time.RFC3339), msg)
	return err
}
