package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed turn lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// turnLock is the in-process mutex of one conversation. waiters counts the
// goroutines holding or queued on it; the entry is dropped at zero.
type turnLock struct {
	mu      sync.Mutex
	waiters int
}

// Manager runs conversation turns one at a time per conversation id.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	turns map[string]*turnLock

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker makes every turn also hold a lock shared with other replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = locker }
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

// WithLogger sets the logger used for lock release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager wraps store with per-conversation serialization.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		turns:   make(map[string]*turnLock),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) join(conversationID string) *turnLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.turns[conversationID]
	if !ok {
		tl = &turnLock{}
		m.turns[conversationID] = tl
	}
	tl.waiters++
	return tl
}

func (m *Manager) leave(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.turns[conversationID]
	if !ok {
		return
	}
	if tl.waiters--; tl.waiters <= 0 {
		delete(m.turns, conversationID)
	}
}

// WithLock runs fn as the only holder of the conversation. With a locker
// configured the lock is held across replicas as well.
func (m *Manager) WithLock(ctx context.Context, conversationID string, fn func(context.Context) error) error {
	tl := m.join(conversationID)
	tl.mu.Lock()
	defer func() {
		tl.mu.Unlock()
		m.leave(conversationID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, conversationID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("conversation %s: distributed lock: %w", conversationID, err)
		}
		defer func() {
			// The lock expires on its own after lockTTL.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.WarnContext(ctx, "distributed lock release failed",
					"conversation_id", conversationID, "error", err)
			}
		}()
	}

	return fn(ctx)
}

// Load returns the stored state or domain.ErrSessionNotFound.
func (m *Manager) Load(ctx context.Context, conversationID string) (*domain.State, error) {
	var st *domain.State
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		var err error
		st, err = m.store.Load(ctx, conversationID)
		return err
	})
	return st, err
}

// LoadOrStart is Load that answers a fresh state for unknown conversations
// without storing it.
func (m *Manager) LoadOrStart(ctx context.Context, conversationID string) (*domain.State, error) {
	var st *domain.State
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		var err error
		st, err = m.current(ctx, conversationID)
		return err
	})
	return st, err
}

// Update is one turn: load (or start) the state, let fn produce the next
// one and store it. Nothing is stored when fn fails.
func (m *Manager) Update(ctx context.Context, conversationID string, fn func(context.Context, *domain.State) (*domain.State, error)) (*domain.State, error) {
	var next *domain.State
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		cur, err := m.current(ctx, conversationID)
		if err != nil {
			return err
		}
		out, err := fn(ctx, cur)
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("conversation %s: turn produced no state", conversationID)
		}
		if err := m.store.Save(ctx, conversationID, out); err != nil {
			return fmt.Errorf("conversation %s: save: %w", conversationID, err)
		}
		next = out
		return nil
	})
	return next, err
}

func (m *Manager) current(ctx context.Context, conversationID string) (*domain.State, error) {
	st, err := m.store.Load(ctx, conversationID)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return domain.NewState(conversationID), nil
	default:
		return nil, fmt.Errorf("conversation %s: load: %w", conversationID, err)
	}
}

// Delete forgets the conversation.
func (m *Manager) Delete(ctx context.Context, conversationID string) error {
	return m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		return m.store.Delete(ctx, conversationID)
	})
}

// List returns the stored conversation ids. It takes no lock.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}
