// Package service implements the application service behind the HTTP API.
// It owns the transaction CRUD use cases and hands each new transaction to
// the saga orchestrator for settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinsaga/coinsaga/pkg/logger"
	"github.com/coinsaga/coinsaga/pkg/saga"
	"github.com/coinsaga/coinsaga/pkg/transaction"
)

// ErrTransactionPending is returned when a delete targets a row whose saga
// is still in flight.
var ErrTransactionPending = errors.New("transaction is still pending")

// CreateInput carries a validated transaction request.
type CreateInput struct {
	UserID    string
	AssetID   string
	Kind      transaction.Kind
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// TransactionService exposes the transaction use cases.
type TransactionService struct {
	store        transaction.Store
	orchestrator *saga.Orchestrator
	log          logger.Logger
}

// NewTransactionService creates the transaction service.
func NewTransactionService(store transaction.Store, orchestrator *saga.Orchestrator, log logger.Logger) (*TransactionService, error) {
	if store == nil {
		return nil, fmt.Errorf("service: transaction store cannot be nil")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("service: orchestrator cannot be nil")
	}
	if log == nil {
		log = logger.Global()
	}
	return &TransactionService{
		store:        store,
		orchestrator: orchestrator,
		log:          log.With("component", "transaction-service"),
	}, nil
}

// Create persists a pending transaction and starts its saga. The row exists
// before the first command leaves, so an outcome can never reference a
// transaction the store has not seen.
func (s *TransactionService) Create(ctx context.Context, in CreateInput) (*transaction.Transaction, error) {
	now := time.Now().UTC()
	txn := &transaction.Transaction{
		ID:         uuid.NewString(),
		SagaID:     uuid.NewString(),
		UserID:     in.UserID,
		AssetID:    in.AssetID,
		Kind:       in.Kind,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		TotalValue: in.Quantity.Mul(in.UnitPrice),
		Status:     transaction.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := s.orchestrator.Start(ctx, txn); err != nil {
		s.log.Error("saga could not be started",
			"transaction_id", txn.ID, "saga_id", txn.SagaID, "error", err)
		if updateErr := s.store.UpdateStatus(ctx, txn.ID, transaction.StatusFailed, "saga could not be started"); updateErr != nil {
			s.log.Error("failed transaction could not be marked",
				"transaction_id", txn.ID, "error", updateErr)
		}
		return nil, fmt.Errorf("start saga: %w", err)
	}

	s.log.Info("transaction created",
		"transaction_id", txn.ID,
		"saga_id", txn.SagaID,
		"user_id", txn.UserID,
		"kind", string(txn.Kind))
	return txn, nil
}

// Get loads one of the user's transactions.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (*transaction.Transaction, error) {
	txn, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Ownership is enforced as not-found so ids cannot be probed.
	if txn.UserID != userID {
		return nil, &transaction.NotFoundError{EntityType: "transaction", ID: id}
	}
	return txn, nil
}

// List lists the user's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, userID string, filter transaction.ListFilter) ([]*transaction.Transaction, int, error) {
	return s.store.ListByUser(ctx, userID, filter)
}

// ListByAsset lists the user's transactions for one asset.
func (s *TransactionService) ListByAsset(ctx context.Context, userID, assetID string, filter transaction.ListFilter) ([]*transaction.Transaction, int, error) {
	filter.AssetID = assetID
	return s.store.ListByUser(ctx, userID, filter)
}

// Delete removes a settled transaction record. Pending rows are refused:
// their saga still references them.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	txn, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if txn.Status == transaction.StatusPending {
		return fmt.Errorf("%w: %s", ErrTransactionPending, id)
	}
	return s.store.Delete(ctx, id)
}
