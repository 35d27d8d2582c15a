// Package telegram implements the session.* contract over the Telegram Bot
// API using long polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cobot-run/cobot/internal/channels/utils"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

const defaultPollTimeoutSeconds = 30

// Adapter polls Telegram's getUpdates endpoint, tracking the update id
// offset so each poll only returns new messages, and downloads media into
// <workspace>/media/telegram/YYYY-MM-DD/.
type Adapter struct {
	client      BotClient
	token       string
	pollTimeout int
	mediaDir    string

	mu     sync.Mutex
	offset int64
}

// New returns a Telegram adapter. pollTimeout is the protocol long-poll
// window in seconds (default 30).
func New(token string, pollTimeout int, mediaDir string) (*Adapter, error) {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeoutSeconds
	}
	b, err := tgbot.New(token)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: newRealBotClient(b), token: token, pollTimeout: pollTimeout, mediaDir: mediaDir}, nil
}

func (a *Adapter) Meta() kernel.Meta {
	return kernel.Meta{
		ID:       "telegram",
		Version:  "1.0.0",
		Priority: 0,
		Extends:  []string{"session"},
	}
}

func (a *Adapter) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (a *Adapter) Start(ctx context.Context) error                        { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) ChannelType() string { return "telegram" }

// Receive long-polls getUpdates once and converts each message update into
// an Incoming, auto-registering unknown chat ids with a placeholder name
// (their numeric chat id as a string) since Telegram doesn't expose
// display names for arbitrary chats up front.
func (a *Adapter) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	a.mu.Lock()
	offset := a.offset
	a.mu.Unlock()

	updates, err := a.client.GetUpdates(ctx, &tgbot.GetUpdatesParams{
		Offset:  offset,
		Timeout: a.pollTimeout,
	})
	if err != nil {
		return nil, err
	}

	var out []*messages.Incoming
	var maxID int64
	for _, u := range updates {
		if u.ID > maxID {
			maxID = int64(u.ID)
		}
		if u.Message == nil {
			continue
		}
		out = append(out, a.toIncoming(ctx, u.Message))
	}

	if len(updates) > 0 {
		a.mu.Lock()
		a.offset = maxID + 1
		a.mu.Unlock()
	}
	return out, nil
}

func (a *Adapter) toIncoming(ctx context.Context, m *models.Message) *messages.Incoming {
	senderName := strconv.FormatInt(m.Chat.ID, 10)
	if m.From != nil {
		if m.From.Username != "" {
			senderName = m.From.Username
		} else if m.From.FirstName != "" {
			senderName = m.From.FirstName
		}
	}

	incoming := &messages.Incoming{
		ChannelType: a.ChannelType(),
		ChannelID:   strconv.FormatInt(m.Chat.ID, 10),
		ID:          strconv.Itoa(m.ID),
		SenderID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderName:  senderName,
		Content:     m.Text,
		Timestamp:   time.Unix(int64(m.Date), 0),
	}

	if m.Photo != nil && len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		if media := a.downloadMedia(ctx, largest.FileID, "image", m.Date); media != nil {
			incoming.Media = append(incoming.Media, *media)
		}
	}
	if m.Document != nil {
		if media := a.downloadMedia(ctx, m.Document.FileID, "document", m.Date); media != nil {
			incoming.Media = append(incoming.Media, *media)
		}
	}

	return incoming
}

func (a *Adapter) downloadMedia(ctx context.Context, fileID, kind string, date int) *messages.Media {
	f, err := a.client.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil || f.FilePath == "" {
		return nil
	}
	day := time.Unix(int64(date), 0).UTC().Format("2006-01-02")
	dest := utils.ExpandPath(fmt.Sprintf("%s/telegram/%s/%s", a.mediaDir, day, fileID))
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", a.token, f.FilePath)
	if err := utils.DownloadToFile(ctx, url, dest, utils.DefaultDownloadOptions()); err != nil {
		return nil
	}
	return &messages.Media{Type: kind, Path: dest}
}

// Send posts out.Content to the chat named by out.ChannelID.
func (a *Adapter) Send(ctx context.Context, out *messages.Outgoing) error {
	chatID, err := strconv.ParseInt(out.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", out.ChannelID, err)
	}
	_, err = a.client.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: out.Content})
	return err
}

// Typing sends a "typing" chat action.
func (a *Adapter) Typing(ctx context.Context, channelID string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return err
	}
	_, err = a.client.SendChatAction(ctx, &tgbot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
	return err
}
