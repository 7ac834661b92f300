// Package models defines HTTP request and response bodies.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateTransactionRequest is the body of POST /api/v1/transactions.
// Quantity and unit price accept JSON numbers or numeric strings.
type CreateTransactionRequest struct {
	AssetID   string          `json:"asset_id" validate:"required,min=1,max=100"`
	Kind      string          `json:"kind" validate:"required,oneof=buy sell"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

// TransactionResponse is the wire form of one transaction record.
type TransactionResponse struct {
	ID            string          `json:"id"`
	SagaID        string          `json:"saga_id"`
	UserID        string          `json:"user_id"`
	AssetID       string          `json:"asset_id"`
	Kind          string          `json:"kind"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransactionListResponse is the body of list endpoints.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}
