package ports

import (
	"context"

	"github.com/aretw0/carebot/pkg/domain"
)

// StateStore keeps conversation state between turns, keyed by conversation id.
// Implementations hand out and keep independent copies.
type StateStore interface {
	Save(ctx context.Context, conversationID string, state *domain.State) error
	// Load fails with domain.ErrSessionNotFound for unknown ids.
	Load(ctx context.Context, conversationID string) (*domain.State, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, conversationID string) error
	List(ctx context.Context) ([]string, error)
}
