package memory

import (
	"context"
	"sync"
	"time"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

const defaultIdempotencyTTL = 24 * time.Hour

type idempotencyEntry struct {
	record    domain.IdempotencyRecord
	expiresAt time.Time
}

// IdempotencyStore keeps request ids in a map until they expire. Expired
// entries are ignored on read and removed by Sweep.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{
		entries: make(map[string]idempotencyEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *IdempotencyStore) Reserve(_ context.Context, key, requestHash string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		rec := e.record
		if rec.Receipt != nil {
			receipt := *rec.Receipt
			rec.Receipt = &receipt
		}
		return &rec, nil
	}

	s.entries[key] = idempotencyEntry{
		record: domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyInProgress,
		},
		expiresAt: now.Add(s.ttl),
	}
	return nil, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, key, requestHash string, receipt *domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *receipt
	s.entries[key] = idempotencyEntry{
		record: domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyCompleted,
			Receipt:     &stored,
		},
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (s *IdempotencyStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked request ids, expired ones included.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
