package ports

import (
	"context"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// LedgerService defines the use cases over accounts and balances.
type LedgerService interface {
	OpenAccount(ctx context.Context, name string, initialBalance int64) (*domain.Account, error)
	GetAccount(ctx context.Context, name string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error)
	Transfer(ctx context.Context, actor string, req domain.TransferRequest) (*domain.Receipt, error)
	Deposit(ctx context.Context, actor, name string, amount int64) (*domain.Account, error)
	Withdraw(ctx context.Context, actor, name string, amount int64) (*domain.Account, error)
}
