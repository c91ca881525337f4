package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAccountRepo struct {
	mu        sync.Mutex
	balances  map[string]int64
	transfers int
}

func newStubAccountRepo(balances map[string]int64) *stubAccountRepo {
	r := &stubAccountRepo{balances: make(map[string]int64)}
	for k, v := range balances {
		r.balances[k] = v
	}
	return r
}

func (r *stubAccountRepo) balance(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[name]
}

func (r *stubAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.balances[a.Name]; ok {
		return domain.ErrAccountExists
	}
	r.balances[a.Name] = a.Balance
	return nil
}

func (r *stubAccountRepo) Get(_ context.Context, name string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[name]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &domain.Account{Name: name, Balance: b}, nil
}

func (r *stubAccountRepo) List(_ context.Context) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Account, 0, len(r.balances))
	for n, b := range r.balances {
		out = append(out, &domain.Account{Name: n, Balance: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *stubAccountRepo) Transfer(_ context.Context, id, from, to string, amount int64, at time.Time) (*domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fb, ok := r.balances[from]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if _, ok := r.balances[to]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	if fb < amount {
		return nil, domain.ErrInsufficientFunds
	}
	r.balances[from] -= amount
	r.balances[to] += amount
	r.transfers++
	return &domain.Receipt{
		TransferID:     id,
		From:           from,
		To:             to,
		Amount:         amount,
		NewFromBalance: r.balances[from],
		NewToBalance:   r.balances[to],
		CommittedAt:    at,
	}, nil
}

func (r *stubAccountRepo) Adjust(_ context.Context, name string, delta int64, at time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[name]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if b+delta < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	r.balances[name] = b + delta
	return &domain.Account{Name: name, Balance: b + delta, UpdatedAt: at}, nil
}

func (r *stubAccountRepo) Entries(context.Context, string, int) ([]domain.LedgerEntry, error) {
	return nil, nil
}

type stubIdempotency struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{records: make(map[string]*domain.IdempotencyRecord)}
}

func (s *stubIdempotency) Reserve(_ context.Context, key, hash string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		c := *rec
		return &c, nil
	}
	s.records[key] = &domain.IdempotencyRecord{Key: key, RequestHash: hash, Status: domain.IdempotencyInProgress}
	return nil, nil
}

func (s *stubIdempotency) Complete(_ context.Context, key, hash string, receipt *domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *receipt
	s.records[key] = &domain.IdempotencyRecord{Key: key, RequestHash: hash, Status: domain.IdempotencyCompleted, Receipt: &r}
	return nil
}

func (s *stubIdempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (p *stubPublisher) Enqueue(_ context.Context, e domain.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *stubPublisher) last() domain.AuditEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newTestLedger(balances map[string]int64) (*LedgerService, *stubAccountRepo, *stubIdempotency, *stubPublisher) {
	repo := newStubAccountRepo(balances)
	idem := newStubIdempotency()
	pub := &stubPublisher{}
	return NewLedgerService(repo, idem, pub, zerolog.Nop()), repo, idem, pub
}

// ---------------------------------------------------------------------------
// Transfer
// ---------------------------------------------------------------------------

func TestLedgerService_Transfer_Success(t *testing.T) {
	svc, repo, _, pub := newTestLedger(map[string]int64{"alice": 100, "bob": 50})

	receipt, err := svc.Transfer(context.Background(), "admin", domain.TransferRequest{From: "alice", To: "bob", Amount: 30})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if receipt.NewFromBalance != 70 || receipt.NewToBalance != 80 {
		t.Fatalf("unexpected receipt balances: %+v", receipt)
	}
	if receipt.TransferID == "" {
		t.Fatalf("expected a transfer id")
	}
	if repo.balance("alice") != 70 || repo.balance("bob") != 80 {
		t.Fatalf("unexpected stored balances: alice=%d bob=%d", repo.balance("alice"), repo.balance("bob"))
	}

	ev := pub.last()
	if ev.State != domain.TransferCommitted || ev.TransferID != receipt.TransferID || ev.Actor != "admin" {
		t.Fatalf("unexpected audit event: %+v", ev)
	}
}

func TestLedgerService_Transfer_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  domain.TransferRequest
		want error
	}{
		{"zero amount", domain.TransferRequest{From: "alice", To: "bob", Amount: 0}, domain.ErrInvalidAmount},
		{"negative amount", domain.TransferRequest{From: "alice", To: "bob", Amount: -5}, domain.ErrInvalidAmount},
		{"unknown sender", domain.TransferRequest{From: "ghost", To: "bob", Amount: 5}, domain.ErrAccountNotFound},
		{"unknown receiver", domain.TransferRequest{From: "alice", To: "ghost", Amount: 5}, domain.ErrAccountNotFound},
		{"same account", domain.TransferRequest{From: "alice", To: "alice", Amount: 5}, domain.ErrSameAccount},
		{"same unknown account", domain.TransferRequest{From: "ghost", To: "ghost", Amount: 5}, domain.ErrAccountNotFound},
		{"invalid amount wins over same account", domain.TransferRequest{From: "alice", To: "alice", Amount: 0}, domain.ErrInvalidAmount},
		{"insufficient funds", domain.TransferRequest{From: "alice", To: "bob", Amount: 101}, domain.ErrInsufficientFunds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, pub := newTestLedger(map[string]int64{"alice": 100, "bob": 50})

			_, err := svc.Transfer(context.Background(), "admin", tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if repo.balance("alice") != 100 || repo.balance("bob") != 50 {
				t.Fatalf("balances changed on rejection: alice=%d bob=%d", repo.balance("alice"), repo.balance("bob"))
			}
			if ev := pub.last(); ev.State != domain.TransferRejected || ev.Reason == "" {
				t.Fatalf("expected rejected audit event, got %+v", ev)
			}
		})
	}
}

func TestLedgerService_Transfer_DrainsToZero(t *testing.T) {
	svc, repo, _, _ := newTestLedger(map[string]int64{"alice": 40, "bob": 0})

	if _, err := svc.Transfer(context.Background(), "admin", domain.TransferRequest{From: "alice", To: "bob", Amount: 40}); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if repo.balance("alice") != 0 || repo.balance("bob") != 40 {
		t.Fatalf("unexpected balances: alice=%d bob=%d", repo.balance("alice"), repo.balance("bob"))
	}
}

func TestLedgerService_Transfer_IdempotentReplay(t *testing.T) {
	svc, repo, _, _ := newTestLedger(map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()
	req := domain.TransferRequest{From: "alice", To: "bob", Amount: 10, RequestID: "req-1"}

	first, err := svc.Transfer(ctx, "admin", req)
	if err != nil {
		t.Fatalf("first Transfer: %v", err)
	}
	second, err := svc.Transfer(ctx, "admin", req)
	if err != nil {
		t.Fatalf("second Transfer: %v", err)
	}

	if !second.Replayed {
		t.Fatalf("expected replayed receipt")
	}
	if second.TransferID != first.TransferID {
		t.Fatalf("expected same transfer id, got %s and %s", first.TransferID, second.TransferID)
	}
	if repo.transfers != 1 || repo.balance("alice") != 90 {
		t.Fatalf("expected a single debit, got transfers=%d alice=%d", repo.transfers, repo.balance("alice"))
	}
}

func TestLedgerService_Transfer_IdempotencyMismatch(t *testing.T) {
	svc, _, _, _ := newTestLedger(map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "admin", domain.TransferRequest{From: "alice", To: "bob", Amount: 10, RequestID: "req-1"}); err != nil {
		t.Fatalf("first Transfer: %v", err)
	}
	_, err := svc.Transfer(ctx, "admin", domain.TransferRequest{From: "alice", To: "bob", Amount: 20, RequestID: "req-1"})
	if !errors.Is(err, domain.ErrIdempotencyMismatch) {
		t.Fatalf("expected ErrIdempotencyMismatch, got %v", err)
	}
}

func TestLedgerService_Transfer_InProgress(t *testing.T) {
	svc, _, idem, _ := newTestLedger(map[string]int64{"alice": 100, "bob": 0})
	req := domain.TransferRequest{From: "alice", To: "bob", Amount: 10, RequestID: "req-1"}
	key := idempotencyKey("admin", "req-1")
	idem.records[key] = &domain.IdempotencyRecord{Key: key, RequestHash: req.Hash(), Status: domain.IdempotencyInProgress}

	if _, err := svc.Transfer(context.Background(), "admin", req); !errors.Is(err, domain.ErrTransferInProgress) {
		t.Fatalf("expected ErrTransferInProgress, got %v", err)
	}
}

func TestLedgerService_Transfer_RequestIDScopedToActor(t *testing.T) {
	svc, repo, _, _ := newTestLedger(map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()
	req := domain.TransferRequest{From: "alice", To: "bob", Amount: 10, RequestID: "req-1"}

	first, err := svc.Transfer(ctx, "carol", req)
	if err != nil {
		t.Fatalf("carol Transfer: %v", err)
	}
	second, err := svc.Transfer(ctx, "dave", req)
	if err != nil {
		t.Fatalf("dave Transfer: %v", err)
	}
	if second.Replayed || second.TransferID == first.TransferID {
		t.Fatalf("another caller must not receive carol's receipt, got %+v", second)
	}
	if repo.transfers != 2 || repo.balance("bob") != 20 {
		t.Fatalf("expected two commits, got transfers=%d bob=%d", repo.transfers, repo.balance("bob"))
	}

	// A third caller reusing the id with another amount is not a mismatch.
	if _, err := svc.Transfer(ctx, "erin", domain.TransferRequest{From: "alice", To: "bob", Amount: 5, RequestID: "req-1"}); err != nil {
		t.Fatalf("erin Transfer: %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	if idempotencyKey("admin", "") != "" {
		t.Fatalf("an empty request id must not reserve anything")
	}
	if idempotencyKey("a:b", "c") == idempotencyKey("a", "b:c") {
		t.Fatalf("keys for distinct callers collide")
	}
}

func TestLedgerService_Transfer_RejectionReleasesRequestID(t *testing.T) {
	svc, repo, _, _ := newTestLedger(map[string]int64{"alice": 5, "bob": 0})
	ctx := context.Background()
	req := domain.TransferRequest{From: "alice", To: "bob", Amount: 10, RequestID: "req-1"}

	if _, err := svc.Transfer(ctx, "admin", req); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.Deposit(ctx, "admin", "alice", 5); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	receipt, err := svc.Transfer(ctx, "admin", req)
	if err != nil {
		t.Fatalf("retry after release: %v", err)
	}
	if receipt.Replayed || repo.balance("bob") != 10 {
		t.Fatalf("expected a fresh commit, got %+v bob=%d", receipt, repo.balance("bob"))
	}
}

func TestLedgerService_Transfer_AuditFailureDoesNotFail(t *testing.T) {
	svc, repo, _, pub := newTestLedger(map[string]int64{"alice": 100, "bob": 0})
	pub.err = errors.New("queue full")

	if _, err := svc.Transfer(context.Background(), "admin", domain.TransferRequest{From: "alice", To: "bob", Amount: 10}); err != nil {
		t.Fatalf("expected commit despite audit failure, got %v", err)
	}
	if repo.balance("bob") != 10 {
		t.Fatalf("expected bob=10, got %d", repo.balance("bob"))
	}
}

func TestLedgerService_Transfer_ConcurrentConservesTotal(t *testing.T) {
	const n = 50
	svc, repo, _, _ := newTestLedger(map[string]int64{"a": 9 * n, "b": 0})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, insufficient int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), "admin", domain.TransferRequest{From: "a", To: "b", Amount: 10})
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
		}()
	}
	wg.Wait()

	if ok != 45 || insufficient != 5 {
		t.Fatalf("expected 45 commits and 5 rejections, got %d and %d", ok, insufficient)
	}
	if repo.balance("a") != 0 || repo.balance("b") != 450 {
		t.Fatalf("unexpected balances: a=%d b=%d", repo.balance("a"), repo.balance("b"))
	}
}

// ---------------------------------------------------------------------------
// Accounts, deposit and withdraw
// ---------------------------------------------------------------------------

func TestLedgerService_OpenAccount(t *testing.T) {
	svc, _, _, _ := newTestLedger(nil)
	ctx := context.Background()

	acc, err := svc.OpenAccount(ctx, "  carol ", 25)
	if err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	if acc.Name != "carol" || acc.Balance != 25 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if _, err := svc.OpenAccount(ctx, "carol", 0); !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := svc.OpenAccount(ctx, "", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.OpenAccount(ctx, "dan", -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative balance, got %v", err)
	}
}

func TestLedgerService_DepositWithdraw(t *testing.T) {
	svc, _, _, pub := newTestLedger(map[string]int64{"alice": 10})
	ctx := context.Background()

	acc, err := svc.Deposit(ctx, "admin", "alice", 15)
	if err != nil || acc.Balance != 25 {
		t.Fatalf("Deposit: acc=%+v err=%v", acc, err)
	}
	if ev := pub.last(); ev.Kind != domain.AuditDeposit || ev.To != "alice" || ev.State != domain.TransferCommitted {
		t.Fatalf("unexpected audit event: %+v", ev)
	}

	acc, err = svc.Withdraw(ctx, "admin", "alice", 25)
	if err != nil || acc.Balance != 0 {
		t.Fatalf("Withdraw: acc=%+v err=%v", acc, err)
	}

	if _, err := svc.Withdraw(ctx, "admin", "alice", 1); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.Deposit(ctx, "admin", "alice", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, "admin", "ghost", 1); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
