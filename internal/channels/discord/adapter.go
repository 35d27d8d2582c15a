// Package discord implements the session.* contract over discordgo's
// gateway connection.
package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// Adapter buffers messages received over the gateway in a mutex-guarded
// slice that Receive drains on each poll, rather than dispatching them inline from
// the discordgo handler goroutine.
type Adapter struct {
	session *discordgo.Session

	mu     sync.Mutex
	buffer []*messages.Incoming
}

// New returns a Discord adapter authenticated with a bot token.
func New(botToken string) (*Adapter, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, err
	}
	a := &Adapter{session: s}
	s.AddHandler(a.onMessageCreate)
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return a, nil
}

func (a *Adapter) Meta() kernel.Meta {
	return kernel.Meta{ID: "discord", Version: "1.0.0", Extends: []string{"session"}}
}

func (a *Adapter) Configure(ctx context.Context, cfg map[string]any) error { return nil }

func (a *Adapter) Start(ctx context.Context) error {
	return a.session.Open()
}

func (a *Adapter) Stop(ctx context.Context) error {
	return a.session.Close()
}

func (a *Adapter) ChannelType() string { return "discord" }

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, &messages.Incoming{
		ChannelType: a.ChannelType(),
		ChannelID:   m.ChannelID,
		ID:          m.ID,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		Content:     m.Content,
		Timestamp:   time.Now(),
	})
}

// Receive drains whatever the gateway handler has buffered since the last
// call.
func (a *Adapter) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.buffer
	a.buffer = nil
	return out, nil
}

func (a *Adapter) Send(ctx context.Context, out *messages.Outgoing) error {
	_, err := a.session.ChannelMessageSend(out.ChannelID, out.Content)
	return err
}

func (a *Adapter) Typing(ctx context.Context, channelID string) error {
	return a.session.ChannelTyping(channelID)
}
