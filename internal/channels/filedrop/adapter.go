// Package filedrop implements the session.* contract over a shared
// directory of JSON message files, for deployments without a reliable
// network-based channel. Each agent gets an inbox/outbox/processed
// directory tree under a shared base directory.
package filedrop

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/messages"
)

// diskMessage is the on-disk JSON shape of one inbox/outbox file.
type diskMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	SentAt    string `json:"sent_at,omitempty"`
}

// Adapter polls its own inbox directory for *.json files, moving each to a
// processed/ sibling directory as it is consumed so a restart never
// redelivers it.
type Adapter struct {
	baseDir  string
	identity string

	mu        sync.Mutex
	inboxDir  string
	outboxDir string
	procDir   string
}

// New returns a filedrop adapter for the given identity, rooted at
// baseDir/<identity>/{inbox,outbox,processed}.
func New(baseDir, identity string) *Adapter {
	if identity == "" {
		identity = "agent"
	}
	root := filepath.Join(baseDir, identity)
	return &Adapter{
		baseDir:   baseDir,
		identity:  identity,
		inboxDir:  filepath.Join(root, "inbox"),
		outboxDir: filepath.Join(root, "outbox"),
		procDir:   filepath.Join(root, "processed"),
	}
}

func (a *Adapter) Meta() kernel.Meta {
	return kernel.Meta{ID: "filedrop", Version: "1.0.0", Priority: -24, Extends: []string{"session"}}
}

func (a *Adapter) Configure(ctx context.Context, cfg map[string]any) error { return nil }

// Start creates the inbox/outbox directories, world-writable so other
// agent processes sharing the base directory can drop messages in.
func (a *Adapter) Start(ctx context.Context) error {
	for _, dir := range []string{a.inboxDir, a.outboxDir} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return fmt.Errorf("filedrop: create %s: %w", dir, err)
		}
		if err := os.Chmod(dir, 0o777); err != nil {
			return fmt.Errorf("filedrop: chmod %s: %w", dir, err)
		}
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error { return nil }

func (a *Adapter) ChannelType() string { return "filedrop" }

// Receive reads every *.json file in the inbox in name order (names are
// time-prefixed so this is also chronological), then atomically moves each
// into processed/ so it is never redelivered.
func (a *Adapter) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	entries, err := os.ReadDir(a.inboxDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filedrop: read inbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*messages.Incoming
	for _, name := range names {
		path := filepath.Join(a.inboxDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var dm diskMessage
		if err := json.Unmarshal(raw, &dm); err != nil {
			continue
		}

		stamp := time.Unix(dm.Timestamp, 0)
		if dm.Timestamp == 0 {
			if fi, err := os.Stat(path); err == nil {
				stamp = fi.ModTime()
			}
		}

		out = append(out, &messages.Incoming{
			ChannelType: a.ChannelType(),
			ChannelID:   a.identity,
			ID:          dm.ID,
			SenderID:    dm.From,
			SenderName:  dm.From,
			Content:     dm.Content,
			Timestamp:   stamp,
		})

		if err := os.MkdirAll(a.procDir, 0o777); err == nil {
			_ = os.Rename(path, filepath.Join(a.procDir, name))
		}
	}
	return out, nil
}

// Send drops a JSON file into the recipient's inbox. out.ChannelID may be
// a bare identity (resolved under baseDir) or a full inbox path.
func (a *Adapter) Send(ctx context.Context, out *messages.Outgoing) error {
	recipientInbox := out.ChannelID
	if filepath.Base(recipientInbox) != "inbox" {
		recipientInbox = filepath.Join(a.baseDir, out.ChannelID, "inbox")
	}
	if err := os.MkdirAll(recipientInbox, 0o777); err != nil {
		return fmt.Errorf("filedrop: recipient inbox %s: %w", recipientInbox, err)
	}

	id, err := newMessageID()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	dm := diskMessage{
		ID:        id,
		From:      a.identity,
		To:        out.ChannelID,
		Content:   out.Content,
		Timestamp: now.Unix(),
		SentAt:    now.Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(dm, "", "  ")
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.WriteFile(filepath.Join(recipientInbox, id+".json"), data, 0o644); err != nil {
		return fmt.Errorf("filedrop: write message: %w", err)
	}
	if err := os.MkdirAll(a.outboxDir, 0o777); err == nil {
		_ = os.WriteFile(filepath.Join(a.outboxDir, id+".json"), data, 0o644)
	}
	return nil
}

// Typing is a no-op: the shared-directory transport has no presence signal.
func (a *Adapter) Typing(ctx context.Context, channelID string) error { return nil }

func newMessageID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("filedrop: generate id: %w", err)
	}
	return fmt.Sprintf("%d_%s", time.Now().Unix(), hex.EncodeToString(buf)), nil
}
