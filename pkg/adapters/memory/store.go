package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/carebot/pkg/domain"
)

type entry struct {
	state   *domain.State
	savedAt time.Time
}

// Store implements ports.StateStore in memory.
// Safe for concurrent use. Entries older than the TTL are dropped on access,
// and the least recently saved entries are evicted beyond MaxSessions.
type Store struct {
	data map[string]entry
	mu   sync.RWMutex

	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL expires conversations idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithMaxSessions bounds the number of retained conversations. Zero means unbounded.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		s.maxSessions = n
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists a deep copy of the state.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.State) error {
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = entry{state: copied, savedAt: s.now()}
	s.evict()
	return nil
}

// Load retrieves a copy of the state so callers can't mutate the store by pointer.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.expired(e) {
		delete(s.data, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return e.state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns live sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id, e := range s.data {
		if !s.expired(e) {
			sessions = append(sessions, id)
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Len reports how many conversations are held, expired ones included until touched.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && s.now().Sub(e.savedAt) > s.ttl
}

// evict must be called with the write lock held.
func (s *Store) evict() {
	for id, e := range s.data {
		if s.expired(e) {
			delete(s.data, id)
		}
	}
	if s.maxSessions <= 0 || len(s.data) <= s.maxSessions {
		return
	}

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.data[ids[i]].savedAt.Before(s.data[ids[j]].savedAt)
	})
	for _, id := range ids[:len(ids)-s.maxSessions] {
		delete(s.data, id)
	}
}
