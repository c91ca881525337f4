package handler

import (
	"time"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// IdempotencyKeyHeader carries the client request id that makes a transfer retry-safe.
const IdempotencyKeyHeader = "Idempotency-Key"

type openAccountRequest struct {
	Name           string `json:"name"            validate:"required,max=64"`
	InitialBalance int64  `json:"initial_balance" validate:"gte=0"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// Amount is checked by the ledger so that zero and negative values surface as
// the ledger's own invalid-amount error.
type transferRequest struct {
	From   string `json:"from"   validate:"required"`
	To     string `json:"to"     validate:"required"`
	Amount int64  `json:"amount"`
}

type accountBalance struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type transferResponse struct {
	Message     string         `json:"message"`
	TransferID  string         `json:"transfer_id"`
	Sender      accountBalance `json:"sender"`
	Receiver    accountBalance `json:"receiver"`
	Amount      int64          `json:"amount"`
	CommittedAt time.Time      `json:"committed_at"`
	RequestID   string         `json:"request_id,omitempty"`
	Replayed    bool           `json:"replayed,omitempty"`
}

type accountsResponse struct {
	Accounts []*domain.Account `json:"accounts"`
}

type entriesResponse struct {
	Account string               `json:"account"`
	Entries []domain.LedgerEntry `json:"entries"`
}

type auditResponse struct {
	Events []domain.AuditEvent `json:"events"`
}

func toTransferResponse(r *domain.Receipt) transferResponse {
	return transferResponse{
		Message:     "Transfer successful",
		TransferID:  r.TransferID,
		Sender:      accountBalance{Name: r.From, Balance: r.NewFromBalance},
		Receiver:    accountBalance{Name: r.To, Balance: r.NewToBalance},
		Amount:      r.Amount,
		CommittedAt: r.CommittedAt,
		RequestID:   r.RequestID,
		Replayed:    r.Replayed,
	}
}
