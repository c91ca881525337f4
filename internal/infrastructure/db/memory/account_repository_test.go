package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

func newTestAccounts(t *testing.T, balances map[string]int64) *AccountRepository {
	t.Helper()
	repo := NewAccountRepository(time.Second)
	for name, b := range balances {
		if err := repo.Create(context.Background(), &domain.Account{Name: name, Balance: b}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	return repo
}

func balanceOf(t *testing.T, repo *AccountRepository, name string) int64 {
	t.Helper()
	acc, err := repo.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return acc.Balance
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"alice": 1})
	if err := repo.Create(context.Background(), &domain.Account{Name: "alice"}); !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "bob"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepository_Transfer(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"alice": 100, "bob": 50})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	receipt, err := repo.Transfer(context.Background(), "t-1", "alice", "bob", 30, at)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if receipt.NewFromBalance != 70 || receipt.NewToBalance != 80 || !receipt.CommittedAt.Equal(at) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	entries, err := repo.Entries(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != -30 || entries[0].Balance != 70 || entries[0].TransferID != "t-1" {
		t.Fatalf("unexpected alice entries: %+v", entries)
	}
	entries, _ = repo.Entries(context.Background(), "bob", 10)
	if len(entries) != 1 || entries[0].Delta != 30 {
		t.Fatalf("unexpected bob entries: %+v", entries)
	}
}

func TestAccountRepository_Transfer_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		amount   int64
		want     error
	}{
		{"insufficient", "alice", "bob", 101, domain.ErrInsufficientFunds},
		{"same account", "alice", "alice", 1, domain.ErrSameAccount},
		{"zero amount", "alice", "bob", 0, domain.ErrInvalidAmount},
		{"unknown from", "ghost", "bob", 1, domain.ErrAccountNotFound},
		{"unknown to", "alice", "ghost", 1, domain.ErrAccountNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newTestAccounts(t, map[string]int64{"alice": 100, "bob": 50})
			_, err := repo.Transfer(context.Background(), "t", tc.from, tc.to, tc.amount, time.Now())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if balanceOf(t, repo, "alice") != 100 || balanceOf(t, repo, "bob") != 50 {
				t.Fatalf("balances changed on rejection")
			}
			if entries, _ := repo.Entries(context.Background(), "alice", 0); len(entries) != 0 {
				t.Fatalf("expected no entries, got %d", len(entries))
			}
		})
	}
}

// N concurrent transfers of 10 from an account holding 9*N: exactly 9N/10
// succeed and the sender never goes negative.
func TestAccountRepository_Transfer_ConcurrentNoOverdraft(t *testing.T) {
	const n = 100
	repo := newTestAccounts(t, map[string]int64{"a": 9 * n, "b": 0})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, insufficient int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Transfer(context.Background(), fmt.Sprintf("t-%d", i), "a", "b", 10, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 90 || insufficient != 10 {
		t.Fatalf("expected 90 commits and 10 rejections, got %d and %d", ok, insufficient)
	}
	if a := balanceOf(t, repo, "a"); a != 0 {
		t.Fatalf("expected a=0, got %d", a)
	}
	if b := balanceOf(t, repo, "b"); b != 900 {
		t.Fatalf("expected b=900, got %d", b)
	}
}

// Transfers in both directions between the same pair must not deadlock and
// must conserve the total.
func TestAccountRepository_Transfer_OppositeDirections(t *testing.T) {
	const rounds = 200
	repo := newTestAccounts(t, map[string]int64{"x": 1000, "y": 1000, "z": 1000})
	pairs := [][2]string{{"x", "y"}, {"y", "x"}, {"y", "z"}, {"z", "x"}, {"x", "z"}, {"z", "y"}}

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for _, p := range pairs {
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()
				_, err := repo.Transfer(context.Background(), "t", from, to, 7, time.Now())
				if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
					t.Errorf("unexpected error: %v", err)
				}
			}(p[0], p[1])
		}
	}
	wg.Wait()

	accounts, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var total int64
	for _, a := range accounts {
		if a.Balance < 0 {
			t.Fatalf("account %s went negative: %d", a.Name, a.Balance)
		}
		total += a.Balance
	}
	if total != 3000 {
		t.Fatalf("expected total 3000, got %d", total)
	}
}

func TestAccountRepository_Transfer_LockTimeout(t *testing.T) {
	repo := NewAccountRepository(20 * time.Millisecond)
	ctx := context.Background()
	_ = repo.Create(ctx, &domain.Account{Name: "a", Balance: 10})
	_ = repo.Create(ctx, &domain.Account{Name: "b"})

	slot, _ := repo.slot("a")
	release, err := repo.acquire(ctx, slot)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := repo.Transfer(ctx, "t", "a", "b", 1, time.Now()); !errors.Is(err, domain.ErrLedgerBusy) {
		t.Fatalf("expected ErrLedgerBusy, got %v", err)
	}
}

func TestAccountRepository_Adjust(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"alice": 10})
	ctx := context.Background()

	acc, err := repo.Adjust(ctx, "alice", -10, time.Now())
	if err != nil || acc.Balance != 0 {
		t.Fatalf("Adjust: acc=%+v err=%v", acc, err)
	}
	if _, err := repo.Adjust(ctx, "alice", -1, time.Now()); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := repo.Adjust(ctx, "ghost", 1, time.Now()); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepository_EntriesNewestFirst(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"alice": 0})
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := repo.Adjust(ctx, "alice", int64(i), time.Now()); err != nil {
			t.Fatalf("Adjust: %v", err)
		}
	}

	entries, err := repo.Entries(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Delta != 5 || entries[1].Delta != 4 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAccountRepository_ListSorted(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"c": 3, "a": 1, "b": 2})
	accounts, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 3 || accounts[0].Name != "a" || accounts[2].Name != "c" {
		t.Fatalf("unexpected order: %v", accounts)
	}
}

func TestAccountRepository_Transfer_CreditOverflow(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"a": 10, "b": math.MaxInt64})

	_, err := repo.Transfer(context.Background(), "t-1", "a", "b", 1, time.Now())
	if !errors.Is(err, domain.ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if got := balanceOf(t, repo, "a"); got != 10 {
		t.Fatalf("sender must be untouched, got %d", got)
	}
	if got := balanceOf(t, repo, "b"); got != math.MaxInt64 {
		t.Fatalf("receiver must be untouched, got %d", got)
	}

	if _, err := repo.Transfer(context.Background(), "t-2", "b", "a", math.MaxInt64-10, time.Now()); err != nil {
		t.Fatalf("credit up to the maximum should succeed: %v", err)
	}
	if got := balanceOf(t, repo, "a"); got != math.MaxInt64 {
		t.Fatalf("expected a at the maximum, got %d", got)
	}
}

func TestAccountRepository_Adjust_DepositOverflow(t *testing.T) {
	repo := newTestAccounts(t, map[string]int64{"a": math.MaxInt64 - 5})

	if _, err := repo.Adjust(context.Background(), "a", 6, time.Now()); !errors.Is(err, domain.ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if got := balanceOf(t, repo, "a"); got != math.MaxInt64-5 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
	if entries, _ := repo.Entries(context.Background(), "a", 0); len(entries) != 0 {
		t.Fatalf("rejected deposit must not write an entry, got %d", len(entries))
	}
	if _, err := repo.Adjust(context.Background(), "a", 5, time.Now()); err != nil {
		t.Fatalf("deposit up to the maximum should succeed: %v", err)
	}
}
