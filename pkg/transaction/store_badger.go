package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	txnKeyPrefix       = "txn:"
	txnIndexSagaPrefix = "txn:index:saga:"
	txnIndexUserPrefix = "txn:index:user:"
)

// BadgerStore stores transaction records in Badger. Rows live at
// "txn:{id}" with a unique secondary index on saga id and a listing index
// per user.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a Badger-backed transaction store.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerStore{db: db}, nil
}

func txnDataKey(id string) []byte {
	return []byte(txnKeyPrefix + id)
}

func txnSagaIndexKey(sagaID string) []byte {
	return []byte(txnIndexSagaPrefix + sagaID)
}

func txnUserIndexKey(userID, id string) []byte {
	return []byte(txnIndexUserPrefix + userID + ":" + id)
}

// Create persists a new transaction and its indexes. Fails with
// DuplicateKeyError when the id or saga id is already present.
func (s *BadgerStore) Create(ctx context.Context, txn *Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := txn.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(txn)
	if err != nil {
		return &SerializationError{Operation: "marshal", Cause: err}
	}

	return s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := tx.Get(txnDataKey(txn.ID)); err == nil {
			return &DuplicateKeyError{EntityType: "transaction", ID: txn.ID}
		}
		if _, err := tx.Get(txnSagaIndexKey(txn.SagaID)); err == nil {
			return &DuplicateKeyError{EntityType: "transaction saga", ID: txn.SagaID}
		}

		if err := tx.Set(txnDataKey(txn.ID), data); err != nil {
			return err
		}
		if err := tx.Set(txnSagaIndexKey(txn.SagaID), []byte(txn.ID)); err != nil {
			return err
		}
		return tx.Set(txnUserIndexKey(txn.UserID, txn.ID), []byte{})
	})
}

// FindByID loads one transaction by id.
func (s *BadgerStore) FindByID(ctx context.Context, id string) (*Transaction, error) {
	var txn Transaction
	err := s.db.View(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := tx.Get(txnDataKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return &NotFoundError{EntityType: "transaction", ID: id}
			}
			return err
		}
		return item.Value(func(v []byte) error {
			if err := json.Unmarshal(v, &txn); err != nil {
				return &SerializationError{Operation: "unmarshal", Cause: err}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindBySagaID loads one transaction by its saga id through the unique index.
func (s *BadgerStore) FindBySagaID(ctx context.Context, sagaID string) (*Transaction, error) {
	var id string
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(txnSagaIndexKey(sagaID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return &NotFoundError{EntityType: "transaction saga", ID: sagaID}
			}
			return err
		}
		return item.Value(func(v []byte) error {
			id = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// ListByUser lists a user's transactions, newest first.
func (s *BadgerStore) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Transaction, int, error) {
	all := make([]*Transaction, 0)

	err := s.db.View(func(tx *badger.Txn) error {
		prefix := []byte(txnIndexUserPrefix + userID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			key := string(it.Item().Key())
			id := strings.TrimPrefix(key, string(prefix))
			txn, err := getTxnInTxn(tx, id)
			if err != nil {
				continue
			}
			if filter.AssetID != "" && txn.AssetID != filter.AssetID {
				continue
			}
			all = append(all, txn)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return paginate(all, filter)
}

// UpdateStatus applies a status transition inside one Badger transaction.
// Terminal rows are left untouched so repeated finalization is a no-op.
func (s *BadgerStore) UpdateStatus(ctx context.Context, id string, status Status, failureReason string) error {
	return s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		txn, err := getTxnInTxn(tx, id)
		if err != nil {
			return err
		}
		if txn.Status.IsTerminal() {
			return nil
		}
		txn.Status = status
		if status == StatusFailed {
			txn.FailureReason = failureReason
		}
		txn.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(txn)
		if err != nil {
			return &SerializationError{Operation: "marshal", Cause: err}
		}
		return tx.Set(txnDataKey(id), data)
	})
}

// Delete removes one transaction and its indexes.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		txn, err := getTxnInTxn(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(txnDataKey(id)); err != nil {
			return err
		}
		if err := tx.Delete(txnSagaIndexKey(txn.SagaID)); err != nil {
			return err
		}
		return tx.Delete(txnUserIndexKey(txn.UserID, id))
	})
}

// Close is a no-op; the caller owns the shared Badger handle.
func (s *BadgerStore) Close() error { return nil }

func getTxnInTxn(tx *badger.Txn, id string) (*Transaction, error) {
	item, err := tx.Get(txnDataKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, &NotFoundError{EntityType: "transaction", ID: id}
		}
		return nil, err
	}
	var txn Transaction
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &txn) }); err != nil {
		return nil, &SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &txn, nil
}
