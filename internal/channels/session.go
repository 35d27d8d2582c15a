// Package channels defines the session-layer contract each channel adapter
// implements, and the communication hub that aggregates them for the
// orchestrator — communication.* built on top of session.* providers, per
// the naming in the original design.
package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cobot-run/cobot/internal/errs"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// ExtensionPoint is the Meta().Extends value every channel adapter
// registers under. Multiple adapters may implement it; the Hub fans out to
// all of them, unlike the single-primary-provider capability lookup used
// for llm.
const ExtensionPoint = "session"

// OnReceiveExtensionPoint and OnSendExtensionPoint are the Meta().Extends
// values a pure observer (e.g. lurker) registers under to watch traffic
// the Hub routes, independent of the orchestrator's own on_message_received
// / on_after_send hook chain. Because the Hub dispatches these directly
// from Poll/Send rather than through RunHook, an observer sees every
// message regardless of what the hook chain later decides (an abort in
// on_message_received never suppresses it).
const (
	OnReceiveExtensionPoint = "session.on_receive"
	OnSendExtensionPoint    = "session.on_send"
)

// ReceiveObserver is implemented by a plugin that wants to watch every
// inbound message the Hub collects, regardless of dedup or hook-chain
// outcome. ObserveReceive errors are isolated like a per-channel poll
// failure: logged by the caller, never fatal to the cycle.
type ReceiveObserver interface {
	ObserveReceive(ctx context.Context, msg *messages.Incoming) error
}

// SendObserver is implemented by a plugin that wants to watch every
// outbound message the Hub successfully delivers.
type SendObserver interface {
	ObserveSend(ctx context.Context, msg *messages.Outgoing) error
}

// Session is implemented by every channel adapter: Telegram, Nostr,
// filedrop, Discord, Slack. Receive returns newly available messages since
// the adapter's own bookkeeping; Send delivers one outgoing message; Typing
// best-effort signals composing status and may be a no-op for adapters that
// don't support it.
type Session interface {
	ChannelType() string
	Receive(ctx context.Context) ([]*messages.Incoming, error)
	Send(ctx context.Context, out *messages.Outgoing) error
	Typing(ctx context.Context, channelID string) error
}

// Hub fans a poll cycle out across every registered Session implementer and
// routes an outgoing message to the one matching its ChannelType. It is the
// communication.poll / communication.send / communication.typing layer
// built on top of the session.* providers looked up through the kernel.
type Hub struct {
	k *kernel.Kernel
}

// NewHub returns a Hub backed by k's registered session implementers.
func NewHub(k *kernel.Kernel) *Hub {
	return &Hub{k: k}
}

func (h *Hub) sessions() []Session {
	var out []Session
	for _, impl := range h.k.GetImplementations(ExtensionPoint) {
		if s, ok := impl.Plugin.(Session); ok {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) receiveObservers() []ReceiveObserver {
	var out []ReceiveObserver
	for _, impl := range h.k.GetImplementations(OnReceiveExtensionPoint) {
		if o, ok := impl.Plugin.(ReceiveObserver); ok {
			out = append(out, o)
		}
	}
	return out
}

func (h *Hub) sendObservers() []SendObserver {
	var out []SendObserver
	for _, impl := range h.k.GetImplementations(OnSendExtensionPoint) {
		if o, ok := impl.Plugin.(SendObserver); ok {
			out = append(out, o)
		}
	}
	return out
}

// Poll calls Receive on every registered channel concurrently, isolates
// per-channel failures (logged by the caller, not fatal to the cycle), and
// returns the union of messages sorted by timestamp ascending.
func (h *Hub) Poll(ctx context.Context) ([]*messages.Incoming, []error) {
	sessions := h.sessions()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		all      []*messages.Incoming
		recvErrs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			msgs, err := s.Receive(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				recvErrs = append(recvErrs, &errs.CommunicationError{ChannelType: s.ChannelType(), Op: "receive", Err: err})
				return
			}
			all = append(all, msgs...)
		}(s)
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	observers := h.receiveObservers()
	for _, msg := range all {
		for _, o := range observers {
			if err := o.ObserveReceive(ctx, msg); err != nil {
				recvErrs = append(recvErrs, fmt.Errorf("session.on_receive observer: %w", err))
			}
		}
	}

	return all, recvErrs
}

// Send routes out to the single registered channel whose ChannelType
// matches out.ChannelType, then fans the delivered message out to every
// session.on_send observer.
func (h *Hub) Send(ctx context.Context, out *messages.Outgoing) error {
	for _, s := range h.sessions() {
		if s.ChannelType() == out.ChannelType {
			if err := s.Send(ctx, out); err != nil {
				return &errs.CommunicationError{ChannelType: out.ChannelType, Op: "send", Err: err}
			}
			for _, o := range h.sendObservers() {
				_ = o.ObserveSend(ctx, out) // best-effort: a send already succeeded, an observer failure must not unwind it
			}
			return nil
		}
	}
	return &errs.CommunicationError{ChannelType: out.ChannelType, Op: "send", Err: fmt.Errorf("no channel registered for %q", out.ChannelType)}
}

// Typing signals composing status on the named channel, if the adapter
// supports it.
func (h *Hub) Typing(ctx context.Context, channelType, channelID string) error {
	for _, s := range h.sessions() {
		if s.ChannelType() == channelType {
			if err := s.Typing(ctx, channelID); err != nil {
				return &errs.CommunicationError{ChannelType: channelType, Op: "typing", Err: err}
			}
			return nil
		}
	}
	return nil
}
