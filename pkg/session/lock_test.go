package session

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullStore never holds anything.
type nullStore struct{}

func (nullStore) Save(context.Context, string, *domain.State) error   { return nil }
func (nullStore) Load(context.Context, string) (*domain.State, error) { return nil, domain.ErrSessionNotFound }
func (nullStore) Delete(context.Context, string) error                { return nil }
func (nullStore) List(context.Context) ([]string, error)              { return nil, nil }

func (m *Manager) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func TestManager_TurnLocksAreDropped(t *testing.T) {
	m := NewManager(nullStore{})
	ctx := context.Background()

	for i := range 2000 {
		id := "conv-" + strconv.Itoa(i)
		_, err := m.Update(ctx, id, func(_ context.Context, s *domain.State) (*domain.State, error) { return s, nil })
		require.NoError(t, err)
		require.NoError(t, m.Delete(ctx, id))
	}
	assert.Zero(t, m.pending())
}

func TestManager_SharedTurnLockReleasedByLastWaiter(t *testing.T) {
	m := NewManager(nullStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.WithLock(ctx, "busy", func(context.Context) error { return nil }))
		}()
	}
	wg.Wait()
	assert.Zero(t, m.pending())
}

func TestManager_NilTurnResult(t *testing.T) {
	m := NewManager(nullStore{})
	_, err := m.Update(context.Background(), "c", func(context.Context, *domain.State) (*domain.State, error) { return nil, nil })
	assert.ErrorContains(t, err, "no state")
}
