package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"time"
)

// Account is a named balance in the ledger. Balance is held in minor units
// and is never negative.
type Account struct {
	Name      string    `json:"name" bson:"name"`
	Balance   int64     `json:"balance" bson:"balance"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// CanCredit reports whether amount can be added to balance without
// overflowing int64. amount must be positive.
func CanCredit(balance, amount int64) bool {
	return balance <= math.MaxInt64-amount
}

// TransferState tracks a transfer through Validated -> Reserved -> Committed,
// or Validated -> Rejected.
type TransferState string

const (
	TransferValidated TransferState = "validated"
	TransferReserved  TransferState = "reserved"
	TransferCommitted TransferState = "committed"
	TransferRejected  TransferState = "rejected"
)

// TransferRequest moves Amount from one account to another. RequestID is an
// optional client-supplied key that makes retries safe.
type TransferRequest struct {
	From      string
	To        string
	Amount    int64
	RequestID string
}

// Hash fingerprints the payload so a reused RequestID can be matched against
// the original request.
func (r TransferRequest) Hash() string {
	sum := sha256.Sum256([]byte(r.From + "\x00" + r.To + "\x00" + strconv.FormatInt(r.Amount, 10)))
	return hex.EncodeToString(sum[:])
}

// Receipt is the result of a committed transfer.
type Receipt struct {
	TransferID     string    `json:"transfer_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Amount         int64     `json:"amount"`
	NewFromBalance int64     `json:"new_from_balance"`
	NewToBalance   int64     `json:"new_to_balance"`
	CommittedAt    time.Time `json:"committed_at"`
	RequestID      string    `json:"request_id,omitempty"`
	// Replayed is set when the receipt was served from the idempotency store.
	Replayed bool `json:"-"`
}

// LedgerEntry is one leg of a double-entry posting. The legs of a transfer
// sum to zero.
type LedgerEntry struct {
	ID         string    `json:"id" bson:"_id"`
	TransferID string    `json:"transfer_id" bson:"transfer_id"`
	Account    string    `json:"account" bson:"account"`
	Delta      int64     `json:"delta" bson:"delta"`
	Balance    int64     `json:"balance" bson:"balance"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// IdempotencyStatus is the lifecycle of a request id.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is what the idempotency store keeps per request id.
type IdempotencyRecord struct {
	Key         string            `json:"key"`
	RequestHash string            `json:"request_hash"`
	Status      IdempotencyStatus `json:"status"`
	Receipt     *Receipt          `json:"receipt,omitempty"`
}
