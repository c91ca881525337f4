package ports

import (
	"context"
	"time"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// AccountRepository is the ledger store. Transfer and Adjust are the only
// operations that change a balance and each must be all-or-nothing.
type AccountRepository interface {
	// Create opens an account. Returns domain.ErrAccountExists on a duplicate name.
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, name string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)

	// Transfer debits from and credits to as one indivisible unit. The
	// sufficient-funds check happens inside the same exclusive section as
	// the debit. On any error neither balance changes.
	Transfer(ctx context.Context, transferID, from, to string, amount int64, at time.Time) (*domain.Receipt, error)

	// Adjust adds delta to a single balance; a result below zero is
	// rejected with domain.ErrInsufficientFunds.
	Adjust(ctx context.Context, name string, delta int64, at time.Time) (*domain.Account, error)

	// Entries returns the newest ledger entries for an account first.
	Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error)
}

// IdempotencyStore remembers transfer outcomes per client request id.
type IdempotencyStore interface {
	// Reserve claims key for a request with the given hash. It returns nil
	// when the claim succeeded, or the existing record when the key is
	// already known.
	Reserve(ctx context.Context, key, requestHash string) (*domain.IdempotencyRecord, error)
	// Complete stores the receipt for a reserved key.
	Complete(ctx context.Context, key, requestHash string, receipt *domain.Receipt) error
	// Release forgets a reservation so the client may retry.
	Release(ctx context.Context, key string) error
}
