package transaction

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func newTestBadgerStore(t *testing.T) Store {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewBadgerStore(db)
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	return store
}

func TestBadgerStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return newTestBadgerStore(t)
	})
}

func TestBadgerStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	store, err := NewBadgerStore(db)
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	txn := newTestTransaction("t1")
	if err := store.Create(ctx, txn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err = badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() after restart error = %v", err)
	}
	defer db.Close()
	store, err = NewBadgerStore(db)
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}

	found, err := store.FindBySagaID(ctx, txn.SagaID)
	if err != nil {
		t.Fatalf("FindBySagaID() after restart error = %v", err)
	}
	if found.ID != "t1" {
		t.Fatalf("expected t1, got %s", found.ID)
	}
}
