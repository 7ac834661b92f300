package eventbus

import "github.com/shopspring/decimal"

// Direction says which way money or holdings move, matching the transaction
// kind. A compensating command carries the inverse direction of the step it
// reverses.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Inverse returns the opposite direction.
func (d Direction) Inverse() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// BalanceUpdateCommand asks the balance service to debit or credit a user's
// cash balance.
type BalanceUpdateCommand struct {
	SagaID        string          `json:"saga_id"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     Direction       `json:"direction"`
	Compensation  bool            `json:"compensation"`
}

// AssetUpdateCommand asks the asset service to credit or debit a user's
// holding of one asset.
type AssetUpdateCommand struct {
	SagaID        string          `json:"saga_id"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	AssetID       string          `json:"asset_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Direction     Direction       `json:"direction"`
	Compensation  bool            `json:"compensation"`
}

// BalanceOutcome reports the balance service's result for one command.
type BalanceOutcome struct {
	SagaID        string `json:"saga_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// AssetOutcome reports the asset service's result for one command.
type AssetOutcome struct {
	SagaID        string `json:"saga_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// TransactionCompleted is broadcast once a saga finishes successfully.
type TransactionCompleted struct {
	SagaID        string `json:"saga_id"`
	TransactionID string `json:"transaction_id"`
}

// TransactionFailed is broadcast once a saga finishes unsuccessfully. The
// failure reason is the remote service's reported cause, passed through
// unmodified, or an orchestrator-generated reason such as a deadline expiry.
type TransactionFailed struct {
	SagaID        string `json:"saga_id"`
	TransactionID string `json:"transaction_id"`
	FailureReason string `json:"failure_reason"`
}
