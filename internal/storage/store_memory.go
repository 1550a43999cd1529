package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	id "idverify/pkg/domain"
)

// InMemoryStore keeps items per browser session in go-cache so idle sessions
// expire without a separate sweeper.
type InMemoryStore struct {
	mu      sync.Mutex
	buckets *cache.Cache
	ttl     time.Duration
}

type bucket struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewInMemory returns a store whose sessions expire ttl after their last write.
func NewInMemory(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		buckets: cache.New(ttl, ttl/2+time.Minute),
		ttl:     ttl,
	}
}

func (s *InMemoryStore) SetItem(_ context.Context, sessionID id.BrowserSessionID, key, value string) error {
	s.mu.Lock()
	b, ok := s.lookup(sessionID)
	if !ok {
		b = &bucket{items: make(map[string]string)}
	}
	// re-set to slide the expiry
	s.buckets.Set(sessionID.String(), b, cache.DefaultExpiration)
	s.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = value
	return nil
}

func (s *InMemoryStore) GetItem(_ context.Context, sessionID id.BrowserSessionID, key string) (string, error) {
	s.mu.Lock()
	b, ok := s.lookup(sessionID)
	s.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) Items(_ context.Context, sessionID id.BrowserSessionID) (map[string]string, error) {
	s.mu.Lock()
	b, ok := s.lookup(sessionID)
	s.mu.Unlock()
	if !ok {
		return map[string]string{}, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.items), nil
}

func (s *InMemoryStore) lookup(sessionID id.BrowserSessionID) (*bucket, bool) {
	v, ok := s.buckets.Get(sessionID.String())
	if !ok {
		return nil, false
	}
	return v.(*bucket), true
}
