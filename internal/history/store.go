package history

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/gzhole/shopbot/internal/protocol"
)

// Session is one conversation's message log. The first Pinned messages are
// never evicted.
type Session struct {
	Pinned   int
	Messages []protocol.Message
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{Pinned: s.Pinned, Messages: make([]protocol.Message, len(s.Messages))}
	copy(out.Messages, s.Messages)
	return out
}

// Store holds sessions by key. Update is an atomic read-modify-write: fn
// receives the current session (nil when absent) and returns the session to
// keep (nil deletes it). When fn returns an error nothing changes.
// In-memory now; a shared cache could implement the same contract.
type Store interface {
	Update(key string, fn func(*Session) (*Session, error)) error
	Load(key string) (*Session, bool)
	Delete(key string)
	Keys() []string
}

const defaultShards = 32

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// MemoryStore is a sharded in-memory Store. Keys in different shards never
// contend for a lock.
type MemoryStore struct {
	shards []*shard
}

func NewMemoryStore(shards int) *MemoryStore {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &MemoryStore{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) Update(key string, fn func(*Session) (*Session, error)) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	next, err := fn(sh.sessions[key].clone())
	if err != nil {
		return err
	}
	if next == nil {
		delete(sh.sessions, key)
		return nil
	}
	sh.sessions[key] = next
	return nil
}

func (s *MemoryStore) Load(key string) (*Session, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[key]
	return sess.clone(), ok
}

func (s *MemoryStore) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.sessions, key)
}

func (s *MemoryStore) Keys() []string {
	var keys []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.sessions {
			keys = append(keys, k)
		}
		sh.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}
