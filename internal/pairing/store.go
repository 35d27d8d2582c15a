// Package pairing implements the two-phase trust gate: an unknown sender
// requests pairing and receives a one-time code; an operator approves the
// code out of band, moving the sender from pending to authorized. State is
// a single YAML file with pending[] and authorized[] lists, hot-reloaded
// by mtime so an operator editing the file by hand is picked up without a
// restart.
package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// CodeLength is the length of generated pairing codes.
	CodeLength = 8
	// CodeAlphabet excludes visually ambiguous characters (0, O, 1, I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	ErrCodeNotFound = errors.New("pairing: code not found")
	ErrNotPending   = errors.New("pairing: no pending request for this sender")
)

// PendingPairing is a sender who has requested access but not yet been
// approved.
type PendingPairing struct {
	ChannelType string    `yaml:"channel_type"`
	SenderID    string    `yaml:"sender_id"`
	SenderName  string    `yaml:"sender_name,omitempty"`
	Code        string    `yaml:"code"`
	RequestedAt time.Time `yaml:"requested_at"`
}

// AuthorizedUser is a sender who has completed pairing (or was bootstrapped
// as the owner).
type AuthorizedUser struct {
	ChannelType string    `yaml:"channel_type"`
	SenderID    string    `yaml:"sender_id"`
	SenderName  string    `yaml:"sender_name,omitempty"`
	AuthorizedAt time.Time `yaml:"authorized_at"`
	IsOwner     bool      `yaml:"is_owner,omitempty"`
}

type fileFormat struct {
	Pending    []PendingPairing  `yaml:"pending"`
	Authorized []AuthorizedUser  `yaml:"authorized"`
}

// Store is the in-memory, file-backed set of pending and authorized users.
// It reloads from disk whenever the file's mtime advances past what it last
// read, so an operator editing pairing.yaml directly (or another process
// instance, though only one writer is expected) is observed promptly.
type Store struct {
	mu      sync.RWMutex
	path    string
	modTime time.Time
	data    fileFormat
}

// Open loads the pairing store at path; a missing file yields an empty
// store and is not created until the first write.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reloadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = fileFormat{}
			return nil
		}
		return err
	}
	if !info.ModTime().After(s.modTime) {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("pairing: parse %s: %w", s.path, err)
	}
	s.data = parsed
	s.modTime = info.ModTime()
	return nil
}

func (s *Store) writeLocked() error {
	out, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}

// IsAuthorized reports whether senderID on channelType has completed
// pairing (or was bootstrapped as the owner).
func (s *Store) IsAuthorized(channelType, senderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkReloadRLocked()
	for _, u := range s.data.Authorized {
		if u.ChannelType == channelType && u.SenderID == senderID {
			return true
		}
	}
	return false
}

func (s *Store) checkReloadRLocked() {
	// reloadLocked requires the write lock; upgrade, reload, downgrade.
	s.mu.RUnlock()
	s.mu.Lock()
	_ = s.reloadLocked()
	s.mu.Unlock()
	s.mu.RLock()
}

// RequestPairing creates a pending request for senderID on channelType if
// one does not already exist, returning the (possibly pre-existing) code.
// Idempotent: calling it again for the same sender before approval returns
// the same code rather than minting a new one.
func (s *Store) RequestPairing(channelType, senderID, senderName string) (code string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return "", err
	}

	for _, p := range s.data.Pending {
		if p.ChannelType == channelType && p.SenderID == senderID {
			return p.Code, nil
		}
	}

	existing := map[string]bool{}
	for _, p := range s.data.Pending {
		existing[p.Code] = true
	}
	code, err = generateUniqueCode(existing)
	if err != nil {
		return "", err
	}

	s.data.Pending = append(s.data.Pending, PendingPairing{
		ChannelType: channelType,
		SenderID:    senderID,
		SenderName:  senderName,
		Code:        code,
		RequestedAt: time.Now(),
	})
	if err := s.writeLocked(); err != nil {
		return "", err
	}
	return code, nil
}

// Approve moves the pending request matching code (case-insensitive) to
// authorized, returning the sender it approved.
func (s *Store) Approve(code string) (*AuthorizedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return nil, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	idx := -1
	for i, p := range s.data.Pending {
		if strings.ToUpper(p.Code) == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrCodeNotFound
	}

	pending := s.data.Pending[idx]
	s.data.Pending = append(s.data.Pending[:idx], s.data.Pending[idx+1:]...)

	user := AuthorizedUser{
		ChannelType:  pending.ChannelType,
		SenderID:     pending.SenderID,
		SenderName:   pending.SenderName,
		AuthorizedAt: time.Now(),
	}
	s.data.Authorized = append(s.data.Authorized, user)
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	return &user, nil
}

// Reject discards the pending request matching code without authorizing
// anyone.
func (s *Store) Reject(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	idx := -1
	for i, p := range s.data.Pending {
		if strings.ToUpper(p.Code) == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCodeNotFound
	}
	s.data.Pending = append(s.data.Pending[:idx], s.data.Pending[idx+1:]...)
	return s.writeLocked()
}

// Revoke removes an already-authorized sender.
func (s *Store) Revoke(channelType, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return err
	}

	idx := -1
	for i, u := range s.data.Authorized {
		if u.ChannelType == channelType && u.SenderID == senderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotPending
	}
	s.data.Authorized = append(s.data.Authorized[:idx], s.data.Authorized[idx+1:]...)
	return s.writeLocked()
}

// BootstrapOwner authorizes senderID unconditionally, used once on first
// start so the operator is never locked out of their own agent.
func (s *Store) BootstrapOwner(channelType, senderID, senderName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return err
	}
	for _, u := range s.data.Authorized {
		if u.ChannelType == channelType && u.SenderID == senderID {
			return nil
		}
	}
	s.data.Authorized = append(s.data.Authorized, AuthorizedUser{
		ChannelType:  channelType,
		SenderID:     senderID,
		SenderName:   senderName,
		AuthorizedAt: time.Now(),
		IsOwner:      true,
	})
	return s.writeLocked()
}

// ListPending returns a snapshot of all pending requests.
func (s *Store) ListPending() []PendingPairing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkReloadRLocked()
	out := make([]PendingPairing, len(s.data.Pending))
	copy(out, s.data.Pending)
	return out
}

// ListAuthorized returns a snapshot of all authorized users.
func (s *Store) ListAuthorized() []AuthorizedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkReloadRLocked()
	out := make([]AuthorizedUser, len(s.data.Authorized))
	copy(out, s.data.Authorized)
	return out
}

func generateCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(code), nil
}

func generateUniqueCode(existing map[string]bool) (string, error) {
	for i := 0; i < 500; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if !existing[code] {
			return code, nil
		}
	}
	return "", errors.New("pairing: failed to generate unique code")
}
