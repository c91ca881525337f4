package ports

import (
	"context"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// UserRepository persists login identities.
type UserRepository interface {
	// Create stores a new user and returns it with its ID assigned.
	// Returns domain.ErrUserExists when the username is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Delete(ctx context.Context, username string) error
}
