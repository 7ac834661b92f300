package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coinsaga/coinsaga/pkg/transaction"
)

func newTestState(sagaID string) *State {
	now := time.Now().UTC()
	return &State{
		SagaID:        sagaID,
		TransactionID: "txn-" + sagaID,
		Kind:          transaction.KindBuy,
		Phase:         PhaseInitiated,
		Deadline:      now.Add(time.Minute),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestMemoryStateStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("s1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, newTestState("s1")); !errors.Is(err, ErrSagaExists) {
		t.Fatalf("expected ErrSagaExists, got %v", err)
	}

	state, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.SagaID != "s1" || state.Phase != PhaseInitiated {
		t.Fatalf("unexpected state: %+v", state)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSagaNotFound) {
		t.Fatalf("expected ErrSagaNotFound, got %v", err)
	}
}

func TestMemoryStateStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("s1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	state, _ := store.Get(ctx, "s1")
	state.BalanceUpdated = true

	fresh, _ := store.Get(ctx, "s1")
	if fresh.BalanceUpdated {
		t.Fatal("mutating a returned state leaked into the store")
	}
}

func TestMemoryStateStoreMutate(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestState("s1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := store.Mutate(ctx, "s1", func(s *State) error {
		s.BalanceUpdated = true
		return s.TransitionTo(PhaseStep1Pending)
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if !updated.BalanceUpdated || updated.Phase != PhaseStep1Pending {
		t.Fatalf("unexpected mutated state: %+v", updated)
	}

	// A failing mutation must not persist.
	if _, err := store.Mutate(ctx, "s1", func(s *State) error {
		s.AssetsUpdated = true
		return errors.New("abort")
	}); err == nil {
		t.Fatal("expected mutation error")
	}
	state, _ := store.Get(ctx, "s1")
	if state.AssetsUpdated {
		t.Fatal("aborted mutation was persisted")
	}

	if _, err := store.Mutate(ctx, "missing", func(*State) error { return nil }); !errors.Is(err, ErrSagaNotFound) {
		t.Fatalf("expected ErrSagaNotFound, got %v", err)
	}
}

func TestMemoryStateStoreMutateSerializedPerSaga(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	state := newTestState("s1")
	state.FailureReason = "0"
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Concurrent read-modify-write increments must not lose updates.
	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Mutate(ctx, "s1", func(s *State) error {
				s.FailureReason = s.FailureReason + "x"
				return nil
			})
			if err != nil {
				t.Errorf("Mutate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	final, _ := store.Get(ctx, "s1")
	if len(final.FailureReason) != 1+workers {
		t.Fatalf("lost updates: got %d appended characters, want %d", len(final.FailureReason)-1, workers)
	}
}

func TestMemoryStateStoreRemoveAndListActive(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, newTestState(id)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}
	if _, err := store.Mutate(ctx, "c", func(s *State) error {
		s.Phase = PhaseCompleted
		return nil
	}); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sagas, got %d", len(active))
	}

	if err := store.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() twice error = %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrSagaNotFound) {
		t.Fatalf("expected ErrSagaNotFound after remove, got %v", err)
	}
}
