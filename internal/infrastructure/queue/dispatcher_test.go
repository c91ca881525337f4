package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

type recordingService struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	failOn string
}

func (s *recordingService) Record(_ context.Context, e domain.AuditEvent) error {
	if e.ID == s.failOn {
		return errors.New("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingService) Recent(context.Context, int) ([]domain.AuditEvent, error) {
	return nil, nil
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	svc := &recordingService{}
	d := NewDispatcher(3, svc, zerolog.Nop())
	d.Start(context.Background())

	for i := 0; i < 100; i++ {
		ev := domain.AuditEvent{ID: fmt.Sprintf("e%d", i), Kind: domain.AuditTransfer, From: fmt.Sprintf("acct-%d", i%7)}
		if err := d.Enqueue(context.Background(), ev); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	d.Close()

	if len(svc.events) != 100 {
		t.Fatalf("expected 100 recorded events, got %d", len(svc.events))
	}
}

func TestDispatcher_PerAccountOrder(t *testing.T) {
	svc := &recordingService{}
	d := NewDispatcher(4, svc, zerolog.Nop())
	d.Start(context.Background())

	for i := 0; i < 50; i++ {
		_ = d.Enqueue(context.Background(), domain.AuditEvent{ID: fmt.Sprintf("%d", i), Kind: domain.AuditDeposit, To: "alice"})
	}
	d.Close()

	for i, e := range svc.events {
		if e.ID != fmt.Sprintf("%d", i) {
			t.Fatalf("event %d out of order: got id %s", i, e.ID)
		}
	}
}

func TestDispatcher_FailedEventDoesNotStopWorker(t *testing.T) {
	svc := &recordingService{failOn: "bad"}
	d := NewDispatcher(1, svc, zerolog.Nop())
	d.Start(context.Background())

	_ = d.Enqueue(context.Background(), domain.AuditEvent{ID: "bad", Kind: domain.AuditTransfer, From: "a"})
	_ = d.Enqueue(context.Background(), domain.AuditEvent{ID: "good", Kind: domain.AuditTransfer, From: "a"})
	d.Close()

	if len(svc.events) != 1 || svc.events[0].ID != "good" {
		t.Fatalf("unexpected recorded events: %+v", svc.events)
	}
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(1, &recordingService{}, zerolog.Nop())
	d.Start(context.Background())
	d.Close()
	d.Close()

	if err := d.Enqueue(context.Background(), domain.AuditEvent{ID: "x"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcher_EnqueueRespectsContext(t *testing.T) {
	// Not started, so the buffer fills and the next Enqueue must give up.
	d := NewDispatcher(1, &recordingService{}, zerolog.Nop())
	for i := 0; i < channelBuffer; i++ {
		if err := d.Enqueue(context.Background(), domain.AuditEvent{ID: "x", From: "a"}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Enqueue(ctx, domain.AuditEvent{ID: "y", From: "a"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDispatcher_ShardIndexStable(t *testing.T) {
	d := NewDispatcher(8, &recordingService{}, zerolog.Nop())
	first := d.shardIndex("alice")
	for i := 0; i < 10; i++ {
		if d.shardIndex("alice") != first {
			t.Fatalf("shard index changed")
		}
	}
	if first < 0 || first >= 8 {
		t.Fatalf("shard index out of range: %d", first)
	}
}
