// Package transaction defines portfolio transaction records and their
// persistence contract.
package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes buys from sells.
type Kind string

const (
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
)

// Valid reports whether the kind is a known value.
func (k Kind) Valid() bool {
	return k == KindBuy || k == KindSell
}

// Status is the transaction lifecycle state. Pending is initial; completed
// and failed are terminal and never transition further.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction is one buy or sell of an asset for a user. The saga id links
// the record to the orchestration that settles it; it is unique per
// transaction.
type Transaction struct {
	ID            string          `json:"id"`
	SagaID        string          `json:"saga_id"`
	UserID        string          `json:"user_id"`
	AssetID       string          `json:"asset_id"`
	Kind          Kind            `json:"kind"`
	Quantity      decimal.Decimal `json:"quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Status        Status          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks the record's invariants before persistence.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id cannot be empty")
	}
	if t.SagaID == "" {
		return fmt.Errorf("saga id cannot be empty")
	}
	if t.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if t.AssetID == "" {
		return fmt.Errorf("asset id cannot be empty")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown transaction kind %q", t.Kind)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if !t.TotalValue.IsPositive() {
		return fmt.Errorf("total value must be positive")
	}
	if !t.UnitPrice.IsPositive() {
		return fmt.Errorf("unit price must be positive")
	}
	return nil
}

// NotFoundError indicates that the requested record was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that a record with the given key already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// SerializationError indicates a failure encoding or decoding stored data.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
