package saga

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

var (
	// ErrSagaExists indicates a saga with the given id is already tracked.
	ErrSagaExists = errors.New("saga already exists")
	// ErrSagaNotFound indicates no saga with the given id is tracked.
	ErrSagaNotFound = errors.New("saga not found")
)

// StateStore persists saga progress. Mutations for the same saga id are
// serialized so concurrent outcome deliveries cannot interleave
// read-modify-write cycles; mutations for different sagas proceed in
// parallel.
type StateStore interface {
	Create(ctx context.Context, state *State) error
	Get(ctx context.Context, sagaID string) (*State, error)
	Mutate(ctx context.Context, sagaID string, fn func(*State) error) (*State, error)
	Remove(ctx context.Context, sagaID string) error
	ListActive(ctx context.Context) ([]*State, error)
	Close() error
}

const mutateStripes = 64

// stripedLocks serializes per-key mutations. Keys hash onto a fixed set of
// stripes, so two sagas may occasionally share one.
type stripedLocks [mutateStripes]sync.Mutex

func (l *stripedLocks) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l[h.Sum32()%mutateStripes]
}

// MemoryStateStore is an in-memory StateStore for tests and development.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*State
	locks  stripedLocks
}

// NewMemoryStateStore creates an in-memory saga state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*State)}
}

// Create tracks a new saga.
func (s *MemoryStateStore) Create(_ context.Context, state *State) error {
	if state == nil || state.SagaID == "" {
		return fmt.Errorf("saga state requires a saga id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.SagaID]; exists {
		return fmt.Errorf("%w: %s", ErrSagaExists, state.SagaID)
	}
	s.states[state.SagaID] = cloneState(state)
	return nil
}

// Get loads one saga's state.
func (s *MemoryStateStore) Get(_ context.Context, sagaID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sagaID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
	}
	return cloneState(state), nil
}

// Mutate applies fn to the saga's state under its stripe lock and persists
// the result. fn returning an error aborts without persisting.
func (s *MemoryStateStore) Mutate(_ context.Context, sagaID string, fn func(*State) error) (*State, error) {
	lock := s.locks.forKey(sagaID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.states[sagaID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
	}

	next := cloneState(current)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.states[sagaID] = next
	s.mu.Unlock()
	return cloneState(next), nil
}

// Remove forgets one saga. Removing an unknown saga is not an error.
func (s *MemoryStateStore) Remove(_ context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sagaID)
	return nil
}

// ListActive returns all non-terminal sagas.
func (s *MemoryStateStore) ListActive(_ context.Context) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*State, 0, len(s.states))
	for _, state := range s.states {
		if state.Phase.IsTerminal() {
			continue
		}
		active = append(active, cloneState(state))
	}
	return active, nil
}

// Close releases store resources.
func (s *MemoryStateStore) Close() error { return nil }
