package ports

import (
	"context"

	"github.com/agrivaani/agrivaani/pkg/domain"
)

// SessionStore defines the interface for persisting conversation sessions.
// Implementations must isolate stored state from caller mutation (copy or
// serialize on Save/Load).
type SessionStore interface {
	// Save persists the session under its key.
	Save(ctx context.Context, sess *domain.Session) error

	// Load retrieves the session for a key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, key string) (*domain.Session, error)

	// Delete removes the session for a key.
	Delete(ctx context.Context, key string) error

	// List returns the keys of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
