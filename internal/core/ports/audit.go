package ports

import (
	"context"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// AuditRepository is the append-only audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
	// List returns up to limit events, newest first.
	List(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

// AuditService persists audit events handed over by the dispatcher.
type AuditService interface {
	Record(ctx context.Context, event domain.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

// AuditPublisher hands audit events off for asynchronous persistence.
type AuditPublisher interface {
	Enqueue(ctx context.Context, event domain.AuditEvent) error
}
