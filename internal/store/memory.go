// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Used for ephemeral game sessions when durability is not required.
//
// Characteristics:
//   - Stores *game.Session objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Entries expire after the configured TTL; expired entries are dropped
//     lazily on access and by Sweep.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/robalobadob/cardle/internal/game"
)

type memEntry struct {
	session   []byte
	expiresAt time.Time
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex        // guards sessions
	sessions map[string]memEntry // keyed by Session.ID
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) Store {
	return &memory{sessions: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

// Save adds or updates the session. A snapshot is stored so later mutation
// of s by the caller does not leak into the store.
func (m *memory) Save(ctx context.Context, s *game.Session) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	e := memEntry{session: b}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = e
	return nil
}

// Get looks up a session by ID.
func (m *memory) Get(ctx context.Context, id string) (*game.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	return decode(e.session)
}

// Delete removes a session; deleting a missing ID is not an error.
func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *memory) Close() error { return nil }

func (m *memory) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
