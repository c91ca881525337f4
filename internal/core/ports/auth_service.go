package ports

import (
	"context"
	"time"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// RegisterInput carries the fields needed to create a user.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	Role     string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	CreateUser(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	DeleteUser(ctx context.Context, username string) error
}

// TokenIssuer signs credentials.
type TokenIssuer interface {
	Issue(identity domain.Identity, role domain.Role, ttl time.Duration) (string, error)
}

// TokenVerifier turns a bearer token back into a credential.
type TokenVerifier interface {
	Verify(token string) (*domain.Credential, error)
}
