package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const sagaKeyPrefix = "saga:"

// BadgerStateStore stores saga state in Badger under "saga:{id}". Mutations
// hold a per-key stripe lock across the read-modify-write so the underlying
// transaction never conflicts with a concurrent mutation of the same saga.
type BadgerStateStore struct {
	db    *badger.DB
	locks stripedLocks
}

// NewBadgerStateStore creates a Badger-backed saga state store.
func NewBadgerStateStore(db *badger.DB) (*BadgerStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerStateStore{db: db}, nil
}

func sagaKey(sagaID string) []byte {
	return []byte(sagaKeyPrefix + sagaID)
}

// Create tracks a new saga.
func (s *BadgerStateStore) Create(ctx context.Context, state *State) error {
	if state == nil || state.SagaID == "" {
		return fmt.Errorf("saga state requires a saga id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal saga state: %w", err)
	}

	return s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := tx.Get(sagaKey(state.SagaID)); err == nil {
			return fmt.Errorf("%w: %s", ErrSagaExists, state.SagaID)
		}
		return tx.Set(sagaKey(state.SagaID), data)
	})
}

// Get loads one saga's state.
func (s *BadgerStateStore) Get(ctx context.Context, sagaID string) (*State, error) {
	var state State
	err := s.db.View(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := tx.Get(sagaKey(sagaID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &state)
		})
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Mutate applies fn to the saga's state under its stripe lock and persists
// the result in one Badger transaction.
func (s *BadgerStateStore) Mutate(ctx context.Context, sagaID string, fn func(*State) error) (*State, error) {
	lock := s.locks.forKey(sagaID)
	lock.Lock()
	defer lock.Unlock()

	var next State
	err := s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := tx.Get(sagaKey(sagaID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
			}
			return err
		}
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &next)
		}); err != nil {
			return err
		}

		if err := fn(&next); err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal saga state: %w", err)
		}
		return tx.Set(sagaKey(sagaID), data)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Remove forgets one saga. Removing an unknown saga is not an error.
func (s *BadgerStateStore) Remove(ctx context.Context, sagaID string) error {
	return s.db.Update(func(tx *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return tx.Delete(sagaKey(sagaID))
	})
}

// ListActive returns all non-terminal sagas.
func (s *BadgerStateStore) ListActive(ctx context.Context) ([]*State, error) {
	active := make([]*State, 0)
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sagaKeyPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var state State
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &state)
			}); err != nil {
				continue
			}
			if state.Phase.IsTerminal() {
				continue
			}
			active = append(active, cloneState(&state))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// Close is a no-op; the caller owns the shared Badger handle.
func (s *BadgerStateStore) Close() error { return nil }
