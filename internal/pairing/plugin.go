package pairing

import (
	"context"
	"fmt"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// Plugin gates every inbound message on authorization: authorized senders
// pass through untouched; unauthorized senders never reach the LLM loop.
// On first contact it creates (or reuses) a pending pairing request and
// replies with the code; once approved out of band, subsequent messages
// from that sender pass. If disabled, or if the message's channel_type is
// in skipChannels, the gate returns unchanged without touching the store.
type Plugin struct {
	store *Store
	path  string

	enabled      bool
	skipChannels map[string]bool
}

// New returns a pairing plugin backed by the YAML file at path.
func New(path string) *Plugin {
	return &Plugin{path: path, enabled: true}
}

func (p *Plugin) Meta() kernel.Meta {
	return kernel.Meta{
		ID:       "pairing",
		Version:  "1.0.0",
		Priority: -100,
		Extends:  []string{kernel.HookOnMessageReceived},
	}
}

func (p *Plugin) Configure(ctx context.Context, cfg map[string]any) error {
	store, err := Open(p.path)
	if err != nil {
		return err
	}
	p.store = store

	p.enabled = true
	if v, ok := cfg["enabled"].(bool); ok {
		p.enabled = v
	}

	p.skipChannels = map[string]bool{}
	for _, ch := range stringSlice(cfg["skip_channels"]) {
		p.skipChannels[ch] = true
	}

	if owner, ok := cfg["owner_channel_type"].(string); ok {
		if ownerID, ok := cfg["owner_sender_id"].(string); ok && owner != "" && ownerID != "" {
			name, _ := cfg["owner_sender_name"].(string)
			if err := p.store.BootstrapOwner(owner, ownerID, name); err != nil {
				return err
			}
		}
	}

	ownerIDs, _ := cfg["owner_ids"].(map[string][]string)
	for channelType, ids := range ownerIDs {
		for _, id := range ids {
			if id == "" {
				continue
			}
			if err := p.store.BootstrapOwner(channelType, id, ""); err != nil {
				return err
			}
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

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

func (p *Plugin) Hooks() map[string]kernel.Hook {
	return map[string]kernel.Hook{
		kernel.HookOnMessageReceived: kernel.Hook(onMessageReceivedFunc(p.onMessageReceived)),
	}
}

type onMessageReceivedFunc func(ctx context.Context, hctx *kernel.HookContext) error

func (f onMessageReceivedFunc) Handle(ctx context.Context, hctx *kernel.HookContext) error {
	return f(ctx, hctx)
}

// onMessageReceived implements the flow: (0) if disabled, or the message's
// channel is in skipChannels, return unchanged, (1) pull the incoming
// message off the context, (2) check the allowlist, (3) if authorized
// return without aborting, (4) otherwise create/reuse a pending request,
// (5) reply with the pairing code by aborting the chain with a canned
// response, (6) never let a pairing-store error abort message processing
// for already-authorized senders.
func (p *Plugin) onMessageReceived(ctx context.Context, hctx *kernel.HookContext) error {
	msg, ok := hctx.Get("message").(*messages.Incoming)
	if !ok {
		return nil
	}

	if !p.enabled || p.skipChannels[msg.ChannelType] {
		return nil
	}

	if p.store.IsAuthorized(msg.ChannelType, msg.SenderID) {
		return nil
	}

	code, err := p.store.RequestPairing(msg.ChannelType, msg.SenderID, msg.SenderName)
	if err != nil {
		return err
	}

	hctx.Abort = true
	hctx.Set("pairing_reply", fmt.Sprintf(
		"You're not paired yet. Your pairing code is %s — share it with the operator to approve access.",
		code,
	))
	return nil
}

// Store exposes the underlying pairing store for the operator CLI
// (pairing list/approve/reject/revoke).
func (p *Plugin) Store() *Store { return p.store }
