package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore keeps transfer request ids in Redis.
// Key format: idem:transfer:<request_id>
// Value: JSON-encoded domain.IdempotencyRecord, expiring after ttl.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates an IdempotencyStore wrapping the given Redis client.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims the key with SET NX. When the key is taken the stored record
// is returned instead.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, requestHash string) (*domain.IdempotencyRecord, error) {
	data, err := encodeRecord(domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyInProgress,
	})
	if err != nil {
		return nil, err
	}

	// Two rounds cover a key that expires between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, s.key(key), data, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("idempotency reserve: %w", err)
		}
		if ok {
			return nil, nil
		}

		raw, err := s.client.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}

		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("idempotency decode: %w", err)
		}
		return &rec, nil
	}
	return nil, fmt.Errorf("idempotency reserve %q: key churned", key)
}

// Complete replaces the reservation with the committed receipt.
func (s *IdempotencyStore) Complete(ctx context.Context, key, requestHash string, receipt *domain.Receipt) error {
	data, err := encodeRecord(domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyCompleted,
		Receipt:     receipt,
	})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release deletes the reservation.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(requestID string) string {
	return "idem:transfer:" + requestID
}

func encodeRecord(rec domain.IdempotencyRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("idempotency encode: %w", err)
	}
	return string(data), nil
}
