package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/worldofchami/bakerelay/pkg/models"
)

// MemoryStore holds conversations in process memory. The map lock only
// guards lookups; each conversation has its own lock.
type MemoryStore struct {
	opts options

	mu    sync.Mutex
	convs map[string]*memoryConversation
}

type memoryConversation struct {
	mu      sync.Mutex
	turns   []models.Turn
	updated time.Time
	removed bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:  buildOptions(opts),
		convs: make(map[string]*memoryConversation),
	}
}

func (s *MemoryStore) entry(key string) *memoryConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[key]
	if !ok {
		c = &memoryConversation{updated: s.opts.now()}
		s.convs[key] = c
	}
	return c
}

// lock returns the live entry for key with its lock held. An entry removed
// by Sweep between lookup and lock is retried.
func (s *MemoryStore) lock(key string) *memoryConversation {
	for {
		c := s.entry(key)
		c.mu.Lock()
		if !c.removed {
			return c
		}
		c.mu.Unlock()
	}
}

// resetIfExpired must be called with c.mu held.
func (s *MemoryStore) resetIfExpired(c *memoryConversation) {
	if s.opts.expired(c.updated) {
		c.turns = nil
		c.updated = s.opts.now()
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, key string) (Conversation, error) {
	c := s.lock(key)
	defer c.mu.Unlock()
	s.resetIfExpired(c)
	return Conversation{Key: key, Turns: models.CloneTurns(c.turns), UpdatedAt: c.updated}, nil
}

func (s *MemoryStore) Append(_ context.Context, key string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	c := s.lock(key)
	defer c.mu.Unlock()
	s.resetIfExpired(c)
	for _, t := range turns {
		c.turns = append(c.turns, t.Clone())
	}
	c.turns = bound(c.turns, s.opts.maxTurns)
	c.updated = s.opts.now()
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context, key string) ([]models.Turn, error) {
	c := s.lock(key)
	defer c.mu.Unlock()
	s.resetIfExpired(c)
	return models.CloneTurns(c.turns), nil
}

// Sweep drops conversations idle for longer than the TTL and returns how
// many were removed. It is a no-op without a TTL.
func (s *MemoryStore) Sweep() int {
	if s.opts.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, c := range s.convs {
		c.mu.Lock()
		stale := s.opts.expired(c.updated)
		if stale {
			c.removed = true
		}
		c.mu.Unlock()
		if stale {
			delete(s.convs, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
