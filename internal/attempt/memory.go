package attempt

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps attempts in process memory. Suitable for a single
// instance; expired entries are swept every cleanupInterval.
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemoryStore returns a MemoryStore whose entries default to ttl.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(ttl, cleanupInterval)}
}

func (m *MemoryStore) Save(_ context.Context, a Attempt, ttl time.Duration) error {
	m.c.Set(a.ID, a, ttl)
	return nil
}

func (m *MemoryStore) Take(_ context.Context, id string) (Attempt, error) {
	if !validID(id) {
		return Attempt{}, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(id)
	if !ok {
		return Attempt{}, ErrNotFound
	}
	m.c.Delete(id)
	a, _ := v.(Attempt)
	return a, nil
}

// Len reports the number of stored (possibly expired, unswept) attempts.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
