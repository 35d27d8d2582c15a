// Package slack implements the session.* contract over Slack's Socket Mode
// Events API via slack-go/slack, buffering socket-mode events for Receive
// to drain.
package slack

import (
	"context"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// Adapter connects over Socket Mode so it needs no public webhook endpoint.
type Adapter struct {
	api    *slack.Client
	client *socketmode.Client

	mu     sync.Mutex
	buffer []*messages.Incoming

	done chan struct{}
}

// New returns a Slack adapter authenticated with a bot token and an
// app-level token for Socket Mode.
func New(botToken, appToken string) *Adapter {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Adapter{api: api, client: client, done: make(chan struct{})}
}

func (a *Adapter) Meta() kernel.Meta {
	return kernel.Meta{ID: "slack", Version: "1.0.0", Extends: []string{"session"}}
}

func (a *Adapter) Configure(ctx context.Context, cfg map[string]any) error { return nil }

func (a *Adapter) Start(ctx context.Context) error {
	go a.consume(ctx)
	go a.client.RunContext(ctx)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	close(a.done)
	return nil
}

func (a *Adapter) ChannelType() string { return "slack" }

func (a *Adapter) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case evt := <-a.client.Events:
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			a.client.Ack(*evt.Request)
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			inner, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok || inner.BotID != "" || inner.SubType != "" {
				continue
			}
			a.mu.Lock()
			a.buffer = append(a.buffer, &messages.Incoming{
				ChannelType: a.ChannelType(),
				ChannelID:   inner.Channel,
				ID:          inner.Timestamp,
				SenderID:    inner.User,
				SenderName:  inner.User,
				Content:     inner.Text,
				Timestamp:   time.Now(),
			})
			a.mu.Unlock()
		}
	}
}

// Receive drains whatever the socket-mode consumer buffered since the last
// call.
func (a *Adapter) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.buffer
	a.buffer = nil
	return out, nil
}

func (a *Adapter) Send(ctx context.Context, out *messages.Outgoing) error {
	_, _, err := a.api.PostMessageContext(ctx, out.ChannelID, slack.MsgOptionText(out.Content, false))
	return err
}

func (a *Adapter) Typing(ctx context.Context, channelID string) error {
	// slack-go has no direct typing-indicator call over the Web API; the
	// events-API equivalent requires Socket Mode acks this adapter already
	// sends, so there is nothing additional to do here.
	return nil
}
