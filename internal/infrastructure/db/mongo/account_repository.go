package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

// AccountRepository implements ports.AccountRepository on MongoDB. Balance
// changes run in a multi-document transaction, so the server must be a
// replica set or sharded cluster.
type AccountRepository struct {
	client   *mongo.Client
	accounts *mongo.Collection
	entries  *mongo.Collection
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{
		client:   db.Client(),
		accounts: db.Collection(collectionAccounts),
		entries:  db.Collection(collectionLedgerEntries),
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.accounts.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, name string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var acc domain.Account
	if err := r.accounts.FindOne(ctx, bson.M{"name": name}).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.accounts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var out []*domain.Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return out, nil
}

// Transfer debits with a conditional update ({balance: {$gte: amount}}) so
// the funds check and the write are one server-side operation, then credits
// and records both legs inside the same transaction.
func (r *AccountRepository) Transfer(ctx context.Context, transferID, from, to string, amount int64, at time.Time) (*domain.Receipt, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if from == to {
		return nil, domain.ErrSameAccount
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	sess, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		src, err := r.apply(sc, from, -amount, at)
		if err != nil {
			return nil, err
		}
		dst, err := r.apply(sc, to, amount, at)
		if err != nil {
			return nil, err
		}

		legs := []interface{}{
			domain.LedgerEntry{ID: uuid.NewString(), TransferID: transferID, Account: from, Delta: -amount, Balance: src.Balance, CreatedAt: at},
			domain.LedgerEntry{ID: uuid.NewString(), TransferID: transferID, Account: to, Delta: amount, Balance: dst.Balance, CreatedAt: at},
		}
		if _, err := r.entries.InsertMany(sc, legs); err != nil {
			return nil, fmt.Errorf("insert ledger entries: %w", err)
		}

		return &domain.Receipt{
			TransferID:     transferID,
			From:           from,
			To:             to,
			Amount:         amount,
			NewFromBalance: src.Balance,
			NewToBalance:   dst.Balance,
			CommittedAt:    at,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Receipt), nil
}

func (r *AccountRepository) Adjust(ctx context.Context, name string, delta int64, at time.Time) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	sess, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		acc, err := r.apply(sc, name, delta, at)
		if err != nil {
			return nil, err
		}
		entry := domain.LedgerEntry{ID: uuid.NewString(), Account: name, Delta: delta, Balance: acc.Balance, CreatedAt: at}
		if _, err := r.entries.InsertOne(sc, entry); err != nil {
			return nil, fmt.Errorf("insert ledger entry: %w", err)
		}
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Account), nil
}

// apply adds delta to one balance. A debit only matches when the balance
// covers it and a credit only when it cannot overflow; a miss is resolved
// into not-found, insufficient funds or overflow.
func (r *AccountRepository) apply(ctx context.Context, name string, delta int64, at time.Time) (*domain.Account, error) {
	filter := bson.M{"name": name}
	if delta < 0 {
		filter["balance"] = bson.M{"$gte": -delta}
	} else {
		filter["balance"] = bson.M{"$lte": math.MaxInt64 - delta}
	}
	update := bson.M{
		"$inc": bson.M{"balance": delta},
		"$set": bson.M{"updated_at": at},
	}

	var acc domain.Account
	err := r.accounts.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acc)
	if err == nil {
		return &acc, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update balance of %s: %w", name, err)
	}

	n, err := r.accounts.CountDocuments(ctx, bson.M{"name": name})
	if err != nil {
		return nil, fmt.Errorf("count account %s: %w", name, err)
	}
	if n == 0 {
		return nil, domain.ErrAccountNotFound
	}
	if delta > 0 {
		return nil, domain.ErrBalanceOverflow
	}
	return nil, domain.ErrInsufficientFunds
}

func (r *AccountRepository) Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error) {
	if _, err := r.Get(ctx, name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.entries.Find(ctx, bson.M{"account": name}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	out := make([]domain.LedgerEntry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode ledger entries: %w", err)
	}
	return out, nil
}
