package domain

import "time"

// AuditKind classifies an audit event.
type AuditKind string

const (
	AuditTransfer AuditKind = "transfer"
	AuditDeposit  AuditKind = "deposit"
	AuditWithdraw AuditKind = "withdraw"
)

// AuditEvent is an append-only record of a ledger operation, including the
// rejected ones.
type AuditEvent struct {
	ID         string        `json:"id" bson:"_id"`
	Kind       AuditKind     `json:"kind" bson:"kind"`
	State      TransferState `json:"state" bson:"state"`
	Actor      string        `json:"actor,omitempty" bson:"actor,omitempty"`
	From       string        `json:"from,omitempty" bson:"from,omitempty"`
	To         string        `json:"to,omitempty" bson:"to,omitempty"`
	Amount     int64         `json:"amount" bson:"amount"`
	TransferID string        `json:"transfer_id,omitempty" bson:"transfer_id,omitempty"`
	Reason     string        `json:"reason,omitempty" bson:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at" bson:"occurred_at"`
}

// ShardKey is the account whose events must stay ordered.
func (e AuditEvent) ShardKey() string {
	if e.From != "" {
		return e.From
	}
	return e.To
}
