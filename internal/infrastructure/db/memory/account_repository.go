// Package memory holds process-local implementations of the storage ports.
// They are the default backends and the ones the test suites run against.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

const defaultLockTimeout = 5 * time.Second

type accountSlot struct {
	lock    *semaphore.Weighted
	account domain.Account
	entries []domain.LedgerEntry
}

// AccountRepository keeps balances in a map. Each account has its own
// weight-one semaphore; a transfer holds both semaphores, acquired in
// lexicographic name order, for the whole check-and-apply.
type AccountRepository struct {
	mu          sync.RWMutex
	slots       map[string]*accountSlot
	lockTimeout time.Duration
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository returns an empty repository. Acquiring account locks
// gives up with domain.ErrLedgerBusy after lockTimeout.
func NewAccountRepository(lockTimeout time.Duration) *AccountRepository {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &AccountRepository{
		slots:       make(map[string]*accountSlot),
		lockTimeout: lockTimeout,
	}
}

func (r *AccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[account.Name]; ok {
		return domain.ErrAccountExists
	}
	r.slots[account.Name] = &accountSlot{
		lock:    semaphore.NewWeighted(1),
		account: *account,
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, name string) (*domain.Account, error) {
	slot, err := r.slot(name)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire(ctx, slot)
	if err != nil {
		return nil, err
	}
	defer release()

	acc := slot.account
	return &acc, nil
}

// List returns a consistent snapshot of every account, ordered by name.
func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	slots := make([]*accountSlot, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		slots = append(slots, r.slots[name])
	}
	r.mu.RUnlock()

	release, err := r.acquire(ctx, slots...)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]*domain.Account, 0, len(slots))
	for _, s := range slots {
		acc := s.account
		out = append(out, &acc)
	}
	return out, nil
}

func (r *AccountRepository) Transfer(ctx context.Context, transferID, from, to string, amount int64, at time.Time) (*domain.Receipt, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if from == to {
		return nil, domain.ErrSameAccount
	}
	src, err := r.slot(from)
	if err != nil {
		return nil, err
	}
	dst, err := r.slot(to)
	if err != nil {
		return nil, err
	}

	first, second := src, dst
	if to < from {
		first, second = dst, src
	}
	release, err := r.acquire(ctx, first, second)
	if err != nil {
		return nil, err
	}
	defer release()

	if src.account.Balance < amount {
		return nil, domain.ErrInsufficientFunds
	}
	if !domain.CanCredit(dst.account.Balance, amount) {
		return nil, domain.ErrBalanceOverflow
	}

	src.account.Balance -= amount
	src.account.UpdatedAt = at
	dst.account.Balance += amount
	dst.account.UpdatedAt = at

	src.entries = append(src.entries, domain.LedgerEntry{
		ID: uuid.NewString(), TransferID: transferID, Account: from,
		Delta: -amount, Balance: src.account.Balance, CreatedAt: at,
	})
	dst.entries = append(dst.entries, domain.LedgerEntry{
		ID: uuid.NewString(), TransferID: transferID, Account: to,
		Delta: amount, Balance: dst.account.Balance, CreatedAt: at,
	})

	return &domain.Receipt{
		TransferID:     transferID,
		From:           from,
		To:             to,
		Amount:         amount,
		NewFromBalance: src.account.Balance,
		NewToBalance:   dst.account.Balance,
		CommittedAt:    at,
	}, nil
}

func (r *AccountRepository) Adjust(ctx context.Context, name string, delta int64, at time.Time) (*domain.Account, error) {
	slot, err := r.slot(name)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire(ctx, slot)
	if err != nil {
		return nil, err
	}
	defer release()

	if delta > 0 && !domain.CanCredit(slot.account.Balance, delta) {
		return nil, domain.ErrBalanceOverflow
	}
	if delta < 0 && slot.account.Balance < -delta {
		return nil, domain.ErrInsufficientFunds
	}
	slot.account.Balance += delta
	slot.account.UpdatedAt = at
	slot.entries = append(slot.entries, domain.LedgerEntry{
		ID: uuid.NewString(), Account: name, Delta: delta,
		Balance: slot.account.Balance, CreatedAt: at,
	})

	acc := slot.account
	return &acc, nil
}

func (r *AccountRepository) Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error) {
	slot, err := r.slot(name)
	if err != nil {
		return nil, err
	}
	release, err := r.acquire(ctx, slot)
	if err != nil {
		return nil, err
	}
	defer release()

	n := len(slot.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.LedgerEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, slot.entries[i])
	}
	return out, nil
}

func (r *AccountRepository) slot(name string) (*accountSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[name]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s, nil
}

// acquire takes the slot locks in the order given. Callers pass them sorted
// by account name.
func (r *AccountRepository) acquire(ctx context.Context, slots ...*accountSlot) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	held := make([]*accountSlot, 0, len(slots))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].lock.Release(1)
		}
	}
	for _, s := range slots {
		if err := s.lock.Acquire(ctx, 1); err != nil {
			release()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("acquire account lock: %w", domain.ErrLedgerBusy)
			}
			return nil, fmt.Errorf("acquire account lock: %w", err)
		}
		held = append(held, s)
	}
	return release, nil
}
