// Package nostr implements the session.* contract over NIP-04 encrypted
// direct messages using nbd-wtf/go-nostr.
package nostr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// Adapter subscribes to kind-4 DMs addressed to the agent's pubkey across
// the configured relays.
type Adapter struct {
	privateKey   string
	publicKey    string
	relays       []string
	sinceMinutes int

	mu    sync.Mutex
	pools map[string]*nostr.Relay
}

// New returns a Nostr adapter for the given private key (hex) and relay
// set. sinceMinutes bounds how far back Receive's first call looks.
func New(privateKeyHex string, relays []string, sinceMinutes int) (*Adapter, error) {
	pub, err := nostr.GetPublicKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("nostr: derive public key: %w", err)
	}
	if sinceMinutes <= 0 {
		sinceMinutes = 5
	}
	return &Adapter{
		privateKey:   privateKeyHex,
		publicKey:    pub,
		relays:       relays,
		sinceMinutes: sinceMinutes,
		pools:        make(map[string]*nostr.Relay),
	}, nil
}

func (a *Adapter) Meta() kernel.Meta {
	return kernel.Meta{ID: "nostr", Version: "1.0.0", Extends: []string{"session"}}
}

func (a *Adapter) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (a *Adapter) Start(ctx context.Context) error                        { return nil }

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.pools {
		r.Close()
	}
	return nil
}

func (a *Adapter) ChannelType() string { return "nostr" }

// Receive queries each configured relay for kind-4 events addressed to the
// agent's pubkey within the since_minutes window, decrypting each with the
// agent's private key.
func (a *Adapter) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	since := nostr.Timestamp(time.Now().Add(-time.Duration(a.sinceMinutes) * time.Minute).Unix())
	filter := nostr.Filter{
		Kinds: []int{nostr.KindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{a.publicKey}},
		Since: &since,
	}

	var out []*messages.Incoming
	for _, url := range a.relays {
		relay, err := a.relayFor(ctx, url)
		if err != nil {
			continue
		}
		events, err := relay.QuerySync(ctx, filter)
		if err != nil {
			continue
		}
		for _, ev := range events {
			shared, err := nip04.ComputeSharedSecret(ev.PubKey, a.privateKey)
			if err != nil {
				continue
			}
			plaintext, err := nip04.Decrypt(ev.Content, shared)
			if err != nil {
				continue
			}
			out = append(out, &messages.Incoming{
				ChannelType: a.ChannelType(),
				ChannelID:   ev.PubKey,
				ID:          ev.ID,
				SenderID:    ev.PubKey,
				SenderName:  ev.PubKey,
				Content:     plaintext,
				Timestamp:   ev.CreatedAt.Time(),
			})
		}
	}
	return out, nil
}

func (a *Adapter) relayFor(ctx context.Context, url string) (*nostr.Relay, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.pools[url]; ok && r.IsConnected() {
		return r, nil
	}
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	a.pools[url] = relay
	return relay, nil
}

// Send encrypts out.Content to the recipient pubkey (out.ChannelID) and
// publishes a kind-4 event to every configured relay.
func (a *Adapter) Send(ctx context.Context, out *messages.Outgoing) error {
	shared, err := nip04.ComputeSharedSecret(out.ChannelID, a.privateKey)
	if err != nil {
		return err
	}
	ciphertext, err := nip04.Encrypt(out.Content, shared)
	if err != nil {
		return err
	}

	ev := nostr.Event{
		PubKey:    a.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{{"p", out.ChannelID}},
		Content:   ciphertext,
	}
	if err := ev.Sign(a.privateKey); err != nil {
		return err
	}

	var lastErr error
	for _, url := range a.relays {
		relay, err := a.relayFor(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if err := relay.Publish(ctx, ev); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Typing is a no-op: Nostr DMs have no composing-indicator primitive.
func (a *Adapter) Typing(ctx context.Context, channelID string) error { return nil }
