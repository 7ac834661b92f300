package transaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ListFilter controls list query behavior.
type ListFilter struct {
	AssetID string
	Limit   int
	Offset  int
}

// Store provides persistence for transaction records. Creation and the
// orchestrator's finalization are the only writers; status updates are
// monotonic, so a terminal row is never overwritten.
type Store interface {
	Create(ctx context.Context, txn *Transaction) error
	FindByID(ctx context.Context, id string) (*Transaction, error)
	FindBySagaID(ctx context.Context, sagaID string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Transaction, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, failureReason string) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is an in-memory Store implementation for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Transaction
	bySaga map[string]string
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Transaction),
		bySaga: make(map[string]string),
	}
}

// Create persists a new transaction record.
func (s *MemoryStore) Create(_ context.Context, txn *Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := txn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[txn.ID]; exists {
		return &DuplicateKeyError{EntityType: "transaction", ID: txn.ID}
	}
	if _, exists := s.bySaga[txn.SagaID]; exists {
		return &DuplicateKeyError{EntityType: "transaction saga", ID: txn.SagaID}
	}

	s.byID[txn.ID] = cloneTransaction(txn)
	s.bySaga[txn.SagaID] = txn.ID
	return nil
}

// FindByID loads one transaction by id.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.byID[id]
	if !ok {
		return nil, &NotFoundError{EntityType: "transaction", ID: id}
	}
	return cloneTransaction(txn), nil
}

// FindBySagaID loads one transaction by its saga id.
func (s *MemoryStore) FindBySagaID(_ context.Context, sagaID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySaga[sagaID]
	if !ok {
		return nil, &NotFoundError{EntityType: "transaction saga", ID: sagaID}
	}
	return cloneTransaction(s.byID[id]), nil
}

// ListByUser lists a user's transactions, newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, filter ListFilter) ([]*Transaction, int, error) {
	s.mu.RLock()
	all := make([]*Transaction, 0)
	for _, txn := range s.byID {
		if txn.UserID != userID {
			continue
		}
		if filter.AssetID != "" && txn.AssetID != filter.AssetID {
			continue
		}
		all = append(all, cloneTransaction(txn))
	}
	s.mu.RUnlock()

	return paginate(all, filter)
}

// UpdateStatus applies a status transition. Terminal rows are left untouched,
// which makes repeated finalization a no-op.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byID[id]
	if !ok {
		return &NotFoundError{EntityType: "transaction", ID: id}
	}
	if txn.Status.IsTerminal() {
		return nil
	}
	txn.Status = status
	if status == StatusFailed {
		txn.FailureReason = failureReason
	}
	txn.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes one transaction record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byID[id]
	if !ok {
		return &NotFoundError{EntityType: "transaction", ID: id}
	}
	delete(s.byID, id)
	delete(s.bySaga, txn.SagaID)
	return nil
}

// Close releases store resources.
func (s *MemoryStore) Close() error { return nil }

func cloneTransaction(txn *Transaction) *Transaction {
	if txn == nil {
		return nil
	}
	clone := *txn
	return &clone
}

// paginate sorts newest first and applies limit/offset.
func paginate(all []*Transaction, filter ListFilter) ([]*Transaction, int, error) {
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := filter.Limit
	if limit < 0 {
		limit = 0
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
