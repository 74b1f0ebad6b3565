package identity

import (
	"context"
	"sync"
	"time"
)

// DefaultStashTTL bounds how long a pending registration or OAuth state
// entry survives before the visitor must restart the flow.
const DefaultStashTTL = 30 * time.Minute

// Stash is the per-visitor transient store for pending-registration
// assertions and OAuth state tokens.
type Stash interface {
	// Put stores an assertion under the given key until the TTL elapses.
	Put(ctx context.Context, key string, assertion Assertion) error
	// Get returns the stashed assertion for a key, if present and fresh.
	Get(ctx context.Context, key string) (Assertion, bool, error)
	// Delete removes a stashed entry.
	Delete(ctx context.Context, key string) error
}

// stashEntry stores an assertion with expiry.
type stashEntry struct {
	assertion Assertion
	expires   time.Time
}

// MemoryStash keeps stash entries in process memory. It backs tests and
// deployments without redis.
type MemoryStash struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]stashEntry
}

// NewMemoryStash creates an empty in-memory stash.
func NewMemoryStash(ttl time.Duration) *MemoryStash {
	if ttl <= 0 {
		ttl = DefaultStashTTL
	}
	return &MemoryStash{ttl: ttl, items: make(map[string]stashEntry)}
}

// Put stores an assertion with expiry.
func (s *MemoryStash) Put(_ context.Context, key string, assertion Assertion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assertion.RawExtra = nil
	s.items[key] = stashEntry{assertion: assertion, expires: time.Now().Add(s.ttl)}
	return nil
}

// Get returns an assertion if present and not expired.
func (s *MemoryStash) Get(_ context.Context, key string) (Assertion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return Assertion{}, false, nil
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return Assertion{}, false, nil
	}
	return entry.assertion, true, nil
}

// Delete removes a stash entry.
func (s *MemoryStash) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
