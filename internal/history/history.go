// Package history keeps a bounded, ordered message log per conversation.
package history

import (
	"errors"
	"fmt"

	"github.com/gzhole/shopbot/internal/protocol"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSystemNotPinned = errors.New("first pinned message must be a system message")
)

// DefaultMaxLength is the number of non-pinned messages kept per session.
const DefaultMaxLength = 20

// Manager applies the window policy on top of a Store: after every append a
// session holds at most MaxLength messages beyond its pinned prefix, the
// oldest unpinned ones being evicted first.
type Manager struct {
	store     Store
	maxLength int
}

func NewManager(store Store, maxLength int) *Manager {
	if store == nil {
		store = NewMemoryStore(0)
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Manager{store: store, maxLength: maxLength}
}

func (m *Manager) MaxLength() int { return m.maxLength }

// Ensure creates the session for key with the given pinned prefix unless it
// already exists. It reports whether the session was created.
func (m *Manager) Ensure(key string, pinned ...protocol.Message) (bool, error) {
	if len(pinned) == 0 || pinned[0].Role != protocol.RoleSystem {
		return false, ErrSystemNotPinned
	}

	created := false
	err := m.store.Update(key, func(s *Session) (*Session, error) {
		if s != nil {
			return s, nil
		}
		created = true
		msgs := make([]protocol.Message, len(pinned))
		copy(msgs, pinned)
		return &Session{Pinned: len(pinned), Messages: msgs}, nil
	})
	return created, err
}

func (m *Manager) Append(key string, msgs ...protocol.Message) error {
	return m.store.Update(key, func(s *Session) (*Session, error) {
		if s == nil {
			return nil, fmt.Errorf("append to %q: %w", key, ErrSessionNotFound)
		}
		s.Messages = append(s.Messages, msgs...)
		if limit := s.Pinned + m.maxLength; len(s.Messages) > limit {
			evict := len(s.Messages) - limit
			kept := make([]protocol.Message, 0, limit)
			kept = append(kept, s.Messages[:s.Pinned]...)
			kept = append(kept, s.Messages[s.Pinned+evict:]...)
			s.Messages = kept
		}
		return s, nil
	})
}

// Get returns a copy of the session's messages in order.
func (m *Manager) Get(key string) ([]protocol.Message, error) {
	s, ok := m.store.Load(key)
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrSessionNotFound)
	}
	return s.Messages, nil
}

// Reset truncates the session to exactly its pinned prefix.
func (m *Manager) Reset(key string) error {
	return m.store.Update(key, func(s *Session) (*Session, error) {
		if s == nil {
			return nil, fmt.Errorf("reset %q: %w", key, ErrSessionNotFound)
		}
		s.Messages = s.Messages[:s.Pinned]
		return s, nil
	})
}

func (m *Manager) Drop(key string) {
	m.store.Delete(key)
}

func (m *Manager) Keys() []string {
	return m.store.Keys()
}
