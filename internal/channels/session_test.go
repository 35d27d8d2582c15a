package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

type fakeSession struct {
	channelType string
	toReceive   []*messages.Incoming
	receiveErr  error
	sent        []*messages.Outgoing
	sendErr     error
}

func (f *fakeSession) Meta() kernel.Meta {
	return kernel.Meta{ID: "session-" + f.channelType, Extends: []string{ExtensionPoint}}
}
func (f *fakeSession) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (f *fakeSession) Start(ctx context.Context) error                        { return nil }
func (f *fakeSession) Stop(ctx context.Context) error                         { return nil }
func (f *fakeSession) ChannelType() string                                    { return f.channelType }

func (f *fakeSession) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return f.toReceive, nil
}

func (f *fakeSession) Send(ctx context.Context, out *messages.Outgoing) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, out)
	return nil
}

func (f *fakeSession) Typing(ctx context.Context, channelID string) error { return nil }

func buildHub(t *testing.T, sessions ...*fakeSession) *Hub {
	t.Helper()
	k := kernel.New()
	for _, s := range sessions {
		if err := k.Register(s); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	return NewHub(k)
}

func TestPollAggregatesAndSortsByTimestamp(t *testing.T) {
	base := time.Now()
	a := &fakeSession{channelType: "telegram", toReceive: []*messages.Incoming{
		{ID: "late", Timestamp: base.Add(2 * time.Second)},
	}}
	b := &fakeSession{channelType: "discord", toReceive: []*messages.Incoming{
		{ID: "early", Timestamp: base},
		{ID: "mid", Timestamp: base.Add(time.Second)},
	}}
	hub := buildHub(t, a, b)

	all, errs := hub.Poll(context.Background())
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 aggregated messages, got %d", len(all))
	}
	if all[0].ID != "early" || all[1].ID != "mid" || all[2].ID != "late" {
		t.Fatalf("expected timestamp-ascending order, got %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
}

func TestPollIsolatesPerChannelFailure(t *testing.T) {
	ok := &fakeSession{channelType: "telegram", toReceive: []*messages.Incoming{{ID: "ok"}}}
	broken := &fakeSession{channelType: "discord", receiveErr: errors.New("rate limited")}
	hub := buildHub(t, ok, broken)

	all, errs := hub.Poll(context.Background())
	if len(all) != 1 || all[0].ID != "ok" {
		t.Fatalf("expected the healthy channel's message to still be returned, got %v", all)
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error surfaced, got %d", len(errs))
	}
}

func TestSendRoutesToMatchingChannelOnly(t *testing.T) {
	telegram := &fakeSession{channelType: "telegram"}
	discord := &fakeSession{channelType: "discord"}
	hub := buildHub(t, telegram, discord)

	out := &messages.Outgoing{ChannelType: "discord", Content: "hi"}
	if err := hub.Send(context.Background(), out); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(discord.sent) != 1 {
		t.Fatalf("expected discord to receive the message, got %d sent", len(discord.sent))
	}
	if len(telegram.sent) != 0 {
		t.Fatal("expected telegram to receive nothing")
	}
}

func TestSendReturnsErrorForUnknownChannel(t *testing.T) {
	hub := buildHub(t, &fakeSession{channelType: "telegram"})
	out := &messages.Outgoing{ChannelType: "nostr", Content: "hi"}
	if err := hub.Send(context.Background(), out); err == nil {
		t.Fatal("expected an error when no channel matches")
	}
}

type fakeObserver struct {
	id         string
	receives   []*messages.Incoming
	sends      []*messages.Outgoing
	receiveErr error
}

func (f *fakeObserver) Meta() kernel.Meta {
	return kernel.Meta{ID: f.id, Extends: []string{OnReceiveExtensionPoint, OnSendExtensionPoint}}
}
func (f *fakeObserver) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (f *fakeObserver) Start(ctx context.Context) error                        { return nil }
func (f *fakeObserver) Stop(ctx context.Context) error                         { return nil }

func (f *fakeObserver) ObserveReceive(ctx context.Context, msg *messages.Incoming) error {
	f.receives = append(f.receives, msg)
	return f.receiveErr
}

func (f *fakeObserver) ObserveSend(ctx context.Context, msg *messages.Outgoing) error {
	f.sends = append(f.sends, msg)
	return nil
}

func TestPollDispatchesEveryMessageToReceiveObservers(t *testing.T) {
	session := &fakeSession{channelType: "telegram", toReceive: []*messages.Incoming{
		{ID: "a"}, {ID: "b"},
	}}
	observer := &fakeObserver{id: "observer"}

	k := kernel.New()
	if err := k.Register(session); err != nil {
		t.Fatalf("Register session: %v", err)
	}
	if err := k.Register(observer); err != nil {
		t.Fatalf("Register observer: %v", err)
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	hub := NewHub(k)

	all, errs := hub.Poll(context.Background())
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(all) != 2 || len(observer.receives) != 2 {
		t.Fatalf("expected the observer to see both polled messages, got %d", len(observer.receives))
	}
}

func TestPollSurfacesReceiveObserverErrorWithoutDroppingMessages(t *testing.T) {
	session := &fakeSession{channelType: "telegram", toReceive: []*messages.Incoming{{ID: "a"}}}
	observer := &fakeObserver{id: "observer", receiveErr: errors.New("sink full")}

	k := kernel.New()
	if err := k.Register(session); err != nil {
		t.Fatalf("Register session: %v", err)
	}
	if err := k.Register(observer); err != nil {
		t.Fatalf("Register observer: %v", err)
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	hub := NewHub(k)

	all, errs := hub.Poll(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected the message to still be returned despite the observer error, got %d", len(all))
	}
	if len(errs) != 1 {
		t.Fatalf("expected the observer error surfaced, got %d", len(errs))
	}
}

func TestSendDispatchesToSendObserversAfterDelivery(t *testing.T) {
	session := &fakeSession{channelType: "telegram"}
	observer := &fakeObserver{id: "observer"}

	k := kernel.New()
	if err := k.Register(session); err != nil {
		t.Fatalf("Register session: %v", err)
	}
	if err := k.Register(observer); err != nil {
		t.Fatalf("Register observer: %v", err)
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	hub := NewHub(k)

	out := &messages.Outgoing{ChannelType: "telegram", Content: "hi"}
	if err := hub.Send(context.Background(), out); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(observer.sends) != 1 {
		t.Fatalf("expected the observer to see the delivered message, got %d", len(observer.sends))
	}
}
