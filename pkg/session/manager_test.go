package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/ports"
	"github.com/aretw0/carebot/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// latencyStore sleeps on every access so unserialized turns would interleave.
type latencyStore struct {
	data map[string]*domain.State
	mu   sync.Mutex
}

func (s *latencyStore) Save(ctx context.Context, conversationID string, state *domain.State) error {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]*domain.State)
	}
	s.data[conversationID] = state.Clone()
	return nil
}

func (s *latencyStore) Load(ctx context.Context, conversationID string) (*domain.State, error) {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.data[conversationID]; ok {
		return state.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *latencyStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return nil
}

func (s *latencyStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_UpdateSerializesTurns(t *testing.T) {
	manager := session.NewManager(&latencyStore{})
	ctx := context.Background()
	id := "ward-7"

	var wg sync.WaitGroup
	concurrentTurns := 10

	// Read-modify-write without locking would lose increments.
	for i := 0; i < concurrentTurns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, id, func(_ context.Context, s *domain.State) (*domain.State, error) {
				s.Turns++
				return s, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, concurrentTurns, state.Turns)
}

func TestManager_UpdateFailureSavesNothing(t *testing.T) {
	manager := session.NewManager(&latencyStore{})
	ctx := context.Background()

	_, err := manager.Update(ctx, "s", func(_ context.Context, s *domain.State) (*domain.State, error) {
		s.Turns = 99
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	_, err = manager.Load(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_LoadOrStart(t *testing.T) {
	manager := session.NewManager(&latencyStore{})
	ctx := context.Background()

	state, err := manager.LoadOrStart(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", state.SessionID)
	assert.Equal(t, domain.ActionNone, state.PendingAction)
}

type countingLocker struct {
	mu       sync.Mutex
	locks    int
	unlocks  int
	lastTTL  time.Duration
	failNext bool
}

func (l *countingLocker) Lock(_ context.Context, _ string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return nil, errors.New("lock busy")
	}
	l.locks++
	l.lastTTL = ttl
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(&latencyStore{}, session.WithLocker(locker), session.WithLockTTL(time.Minute))
	ctx := context.Background()

	_, err := manager.Update(ctx, "s", func(_ context.Context, s *domain.State) (*domain.State, error) { return s, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, locker.locks)
	assert.Equal(t, 1, locker.unlocks)
	assert.Equal(t, time.Minute, locker.lastTTL)

	locker.failNext = true
	_, err = manager.Update(ctx, "s", func(_ context.Context, s *domain.State) (*domain.State, error) { return s, nil })
	assert.ErrorContains(t, err, "distributed lock")
}
