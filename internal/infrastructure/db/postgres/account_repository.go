package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

const (
	uniqueViolation  = "23505"
	lockNotAvailable = "55P03"

	defaultLockTimeout = 5 * time.Second
)

// AccountRepository implements ports.AccountRepository on PostgreSQL. Each
// balance change is one transaction that row-locks the affected accounts
// with SELECT ... FOR UPDATE in name order. Row lock waits are bounded by
// lockTimeout and surface as domain.ErrLedgerBusy.
type AccountRepository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(db *pgxpool.Pool, lockTimeout time.Duration) *AccountRepository {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &AccountRepository{db: db, lockTimeout: lockTimeout}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO accounts (name, balance, created_at, updated_at) VALUES ($1, $2, $3, $4)",
		account.Name, account.Balance, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, name string) (*domain.Account, error) {
	var acc domain.Account
	err := r.db.QueryRow(ctx,
		"SELECT name, balance, created_at, updated_at FROM accounts WHERE name = $1", name,
	).Scan(&acc.Name, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, "SELECT name, balance, created_at, updated_at FROM accounts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.Name, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, &acc)
	}
	return out, rows.Err()
}

func (r *AccountRepository) Transfer(ctx context.Context, transferID, from, to string, amount int64, at time.Time) (*domain.Receipt, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if from == to {
		return nil, domain.ErrSameAccount
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := from, to
	if to < from {
		first, second = to, from
	}
	balances := make(map[string]int64, 2)
	for _, name := range []string{first, second} {
		b, err := lockBalance(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		balances[name] = b
	}

	if balances[from] < amount {
		return nil, domain.ErrInsufficientFunds
	}
	if !domain.CanCredit(balances[to], amount) {
		return nil, domain.ErrBalanceOverflow
	}
	newFrom := balances[from] - amount
	newTo := balances[to] + amount

	if err := setBalance(ctx, tx, from, newFrom, at); err != nil {
		return nil, err
	}
	if err := setBalance(ctx, tx, to, newTo, at); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, transfer_id, account, delta, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6), ($7, $2, $8, $9, $10, $6)`,
		uuid.NewString(), transferID, from, -amount, newFrom, at,
		uuid.NewString(), to, amount, newTo,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	return &domain.Receipt{
		TransferID:     transferID,
		From:           from,
		To:             to,
		Amount:         amount,
		NewFromBalance: newFrom,
		NewToBalance:   newTo,
		CommittedAt:    at,
	}, nil
}

func (r *AccountRepository) Adjust(ctx context.Context, name string, delta int64, at time.Time) (*domain.Account, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin adjust: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if delta > 0 && !domain.CanCredit(balance, delta) {
		return nil, domain.ErrBalanceOverflow
	}
	if delta < 0 && balance < -delta {
		return nil, domain.ErrInsufficientFunds
	}
	if err := setBalance(ctx, tx, name, balance+delta, at); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO ledger_entries (id, account, delta, balance, created_at) VALUES ($1, $2, $3, $4, $5)",
		uuid.NewString(), name, delta, balance+delta, at,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	var acc domain.Account
	err = tx.QueryRow(ctx,
		"SELECT name, balance, created_at, updated_at FROM accounts WHERE name = $1", name,
	).Scan(&acc.Name, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit adjust: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepository) Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error) {
	if _, err := r.Get(ctx, name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, transfer_id, account, delta, balance, created_at
		   FROM ledger_entries WHERE account = $1
		  ORDER BY created_at DESC LIMIT $2`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransferID, &e.Account, &e.Delta, &e.Balance, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// begin opens a read-committed transaction whose lock waits give up after
// r.lockTimeout.
func (r *AccountRepository) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, lockTimeoutStatement(r.lockTimeout)); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}

// SET does not take bind parameters, so the value is formatted in place.
func lockTimeoutStatement(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

func lockBalance(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE name = $1 FOR UPDATE", name).Scan(&balance)
	if err != nil {
		return 0, lockError(name, err)
	}
	return balance, nil
}

func lockError(name string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return fmt.Errorf("lock account %s: %w", name, domain.ErrLedgerBusy)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock account %s: %w", name, domain.ErrLedgerBusy)
	}
	return fmt.Errorf("lock account %s: %w", name, err)
}

func setBalance(ctx context.Context, tx pgx.Tx, name string, balance int64, at time.Time) error {
	_, err := tx.Exec(ctx, "UPDATE accounts SET balance = $1, updated_at = $2 WHERE name = $3", balance, at, name)
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", name, err)
	}
	return nil
}
