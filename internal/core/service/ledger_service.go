package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/ledger-gateway/internal/api/metrics"
	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 500
)

// LedgerService validates ledger operations and hands the atomic part to the
// repository.
type LedgerService struct {
	accounts ports.AccountRepository
	idem     ports.IdempotencyStore
	audit    ports.AuditPublisher
	log      zerolog.Logger
	now      func() time.Time
}

// NewLedgerService wires the ledger use cases. idem and audit may be nil.
func NewLedgerService(accounts ports.AccountRepository, idem ports.IdempotencyStore, audit ports.AuditPublisher, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		accounts: accounts,
		idem:     idem,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerService) OpenAccount(ctx context.Context, name string, initialBalance int64) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("open account: %w: name is required", domain.ErrInvalidInput)
	}
	if initialBalance < 0 {
		return nil, fmt.Errorf("open account: %w: initial balance must not be negative", domain.ErrInvalidInput)
	}

	now := s.now()
	acc := &domain.Account{Name: name, Balance: initialBalance, CreatedAt: now, UpdatedAt: now}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}

	s.log.Info().Str("account", name).Int64("balance", initialBalance).Msg("account opened")
	return acc, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, name string) (*domain.Account, error) {
	acc, err := s.accounts.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accs, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accs, nil
}

func (s *LedgerService) Entries(ctx context.Context, name string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	entries, err := s.accounts.Entries(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Transfer moves req.Amount from req.From to req.To. Validation runs before
// anything is reserved or written; the balance check and both writes happen
// inside the repository's exclusive section.
func (s *LedgerService) Transfer(ctx context.Context, actor string, req domain.TransferRequest) (*domain.Receipt, error) {
	timer := prometheus.NewTimer(metrics.TransferDuration)
	defer timer.ObserveDuration()

	if err := s.validateTransfer(ctx, req); err != nil {
		s.reject(ctx, actor, req, err)
		return nil, fmt.Errorf("transfer: %w", err)
	}

	key := idempotencyKey(actor, req.RequestID)
	if key != "" && s.idem != nil {
		existing, err := s.idem.Reserve(ctx, key, req.Hash())
		if err != nil {
			return nil, fmt.Errorf("transfer: reserve request id: %w", err)
		}
		if existing != nil {
			return s.replay(req, existing)
		}
	}

	s.log.Debug().Str("from", req.From).Str("to", req.To).Int64("amount", req.Amount).
		Str("state", string(domain.TransferReserved)).Msg("transfer reserved")

	receipt, err := s.accounts.Transfer(ctx, uuid.NewString(), req.From, req.To, req.Amount, s.now())
	if err != nil {
		s.release(ctx, key)
		s.reject(ctx, actor, req, err)
		return nil, fmt.Errorf("transfer: %w", err)
	}
	receipt.RequestID = req.RequestID

	if key != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, key, req.Hash(), receipt); err != nil {
			// Retries under this key report in progress until the key expires.
			s.log.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to store transfer receipt")
		}
	}

	metrics.TransfersTotal.WithLabelValues(string(domain.TransferCommitted)).Inc()
	s.publish(ctx, domain.AuditEvent{
		Kind:       domain.AuditTransfer,
		State:      domain.TransferCommitted,
		Actor:      actor,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		TransferID: receipt.TransferID,
	})
	s.log.Info().
		Str("transfer_id", receipt.TransferID).
		Str("from", req.From).
		Str("to", req.To).
		Int64("amount", req.Amount).
		Msg("transfer committed")

	return receipt, nil
}

// validateTransfer has no side effects. The order of checks is amount,
// account existence, then same-account.
func (s *LedgerService) validateTransfer(ctx context.Context, req domain.TransferRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		return domain.ErrAccountNotFound
	}
	if _, err := s.accounts.Get(ctx, req.From); err != nil {
		return err
	}
	if _, err := s.accounts.Get(ctx, req.To); err != nil {
		return err
	}
	if req.From == req.To {
		return domain.ErrSameAccount
	}
	return nil
}

// idempotencyKey scopes a client request id to the caller that sent it. The
// actor is length-prefixed so no pair of (actor, id) collides with another.
func idempotencyKey(actor, requestID string) string {
	if requestID == "" {
		return ""
	}
	return fmt.Sprintf("%d:%s:%s", len(actor), actor, requestID)
}

func (s *LedgerService) replay(req domain.TransferRequest, rec *domain.IdempotencyRecord) (*domain.Receipt, error) {
	if rec.RequestHash != req.Hash() {
		return nil, fmt.Errorf("transfer: %w", domain.ErrIdempotencyMismatch)
	}
	if rec.Status != domain.IdempotencyCompleted || rec.Receipt == nil {
		return nil, fmt.Errorf("transfer: %w", domain.ErrTransferInProgress)
	}

	metrics.IdempotentReplaysTotal.Inc()
	s.log.Info().Str("request_id", req.RequestID).Str("transfer_id", rec.Receipt.TransferID).Msg("idempotent replay")

	receipt := *rec.Receipt
	receipt.Replayed = true
	return &receipt, nil
}

func (s *LedgerService) release(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		s.log.Error().Err(err).Str("request_id", key).Msg("failed to release request id")
	}
}

func (s *LedgerService) reject(ctx context.Context, actor string, req domain.TransferRequest, cause error) {
	metrics.TransfersTotal.WithLabelValues(string(domain.TransferRejected)).Inc()
	s.log.Info().Err(cause).Str("from", req.From).Str("to", req.To).Int64("amount", req.Amount).Msg("transfer rejected")
	s.publish(ctx, domain.AuditEvent{
		Kind:   domain.AuditTransfer,
		State:  domain.TransferRejected,
		Actor:  actor,
		From:   req.From,
		To:     req.To,
		Amount: req.Amount,
		Reason: cause.Error(),
	})
}

// Deposit credits a single account.
func (s *LedgerService) Deposit(ctx context.Context, actor, name string, amount int64) (*domain.Account, error) {
	return s.adjust(ctx, domain.AuditDeposit, actor, name, amount, amount)
}

// Withdraw debits a single account; the balance never goes below zero.
func (s *LedgerService) Withdraw(ctx context.Context, actor, name string, amount int64) (*domain.Account, error) {
	return s.adjust(ctx, domain.AuditWithdraw, actor, name, amount, -amount)
}

func (s *LedgerService) adjust(ctx context.Context, kind domain.AuditKind, actor, name string, amount, delta int64) (*domain.Account, error) {
	event := domain.AuditEvent{Kind: kind, Actor: actor, Amount: amount}
	if kind == domain.AuditDeposit {
		event.To = name
	} else {
		event.From = name
	}

	if amount <= 0 {
		event.State, event.Reason = domain.TransferRejected, domain.ErrInvalidAmount.Error()
		s.publish(ctx, event)
		return nil, fmt.Errorf("%s: %w", kind, domain.ErrInvalidAmount)
	}

	acc, err := s.accounts.Adjust(ctx, name, delta, s.now())
	if err != nil {
		event.State, event.Reason = domain.TransferRejected, err.Error()
		s.publish(ctx, event)
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	event.State = domain.TransferCommitted
	s.publish(ctx, event)
	s.log.Info().Str("account", name).Int64("delta", delta).Int64("balance", acc.Balance).Msg(string(kind) + " committed")
	return acc, nil
}

func (s *LedgerService) publish(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now()
	if err := s.audit.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		metrics.AuditDroppedTotal.Inc()
		s.log.Error().Err(err).Str("kind", string(event.Kind)).Str("state", string(event.State)).Msg("audit event dropped")
	}
}
