package saga

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coinsaga/coinsaga/pkg/eventbus"
	"github.com/coinsaga/coinsaga/pkg/transaction"
)

func TestListenerEndToEndBuyFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := eventbus.NewMemoryBus()
	states := NewMemoryStateStore()
	transactions := transaction.NewMemoryStore()

	publisher, err := eventbus.NewPublisher("orchestrator-1", bus, eventbus.DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	orchestrator, err := NewOrchestrator(states, transactions, publisher, time.Minute, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	listener, err := NewListener(bus, orchestrator, nil, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	listenerDone := make(chan error, 1)
	go func() { listenerDone <- listener.Run(ctx) }()

	f := &fixture{orchestrator: orchestrator, states: states, transactions: transactions}
	txn := f.createTransaction(t, transaction.KindBuy)
	if err := orchestrator.Start(ctx, txn); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Stand in for the remote services answering both commands.
	remote, err := eventbus.NewPublisher("balance-1", bus, eventbus.DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if err := remote.PublishBalanceOutcome(ctx, eventbus.BalanceOutcome{
		SagaID: txn.SagaID, TransactionID: txn.ID, UserID: txn.UserID, Success: true,
	}); err != nil {
		t.Fatalf("PublishBalanceOutcome() error = %v", err)
	}

	waitForPhase(t, ctx, states, txn.SagaID, PhaseStep2Pending)

	if err := remote.PublishAssetOutcome(ctx, eventbus.AssetOutcome{
		SagaID: txn.SagaID, TransactionID: txn.ID, UserID: txn.UserID, Success: true,
	}); err != nil {
		t.Fatalf("PublishAssetOutcome() error = %v", err)
	}

	waitForStatus(t, ctx, transactions, txn.ID, transaction.StatusCompleted)

	cancel()
	if err := <-listenerDone; err != nil {
		t.Fatalf("listener error = %v", err)
	}
}

func TestListenerMalformedMessageAcked(t *testing.T) {
	f := newFixture(t)
	listener, err := NewListener(eventbus.NewMemoryBus(), f.orchestrator, nil, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}

	err = listener.handle(context.Background(), eventbus.Message{
		Subject: eventbus.SubjectBalanceUpdated,
		Payload: []byte("{not json"),
	})
	if err != nil {
		t.Fatalf("malformed message must be consumed, got %v", err)
	}
}

func TestListenerDuplicateEventIDSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.createTransaction(t, transaction.KindBuy)
	if err := f.orchestrator.Start(ctx, txn); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	listener, err := NewListener(eventbus.NewMemoryBus(), f.orchestrator, nil, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}

	envelope, err := eventbus.BuildEnvelope(eventbus.BuildEnvelopeInput{
		EventType:     eventbus.EventTypeBalanceUpdated,
		NodeID:        "balance-1",
		SagaID:        txn.SagaID,
		TransactionID: txn.ID,
		Payload: eventbus.BalanceOutcome{
			SagaID: txn.SagaID, TransactionID: txn.ID, Success: true,
		},
	})
	if err != nil {
		t.Fatalf("BuildEnvelope() error = %v", err)
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	msg := eventbus.Message{Subject: eventbus.SubjectBalanceUpdated, Payload: raw}

	for i := 0; i < 2; i++ {
		if err := listener.handle(ctx, msg); err != nil {
			t.Fatalf("delivery %d error = %v", i, err)
		}
	}

	state, err := f.states.Get(ctx, txn.SagaID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Phase != PhaseStep2Pending {
		t.Fatalf("unexpected phase: %s", state.Phase)
	}
	// The second delivery carried the same event id; it must not dispatch the
	// second step again.
	if len(f.publisher.assetCmds) != 1 {
		t.Fatalf("expected one asset command, got %d", len(f.publisher.assetCmds))
	}
}

func waitForPhase(t *testing.T, ctx context.Context, states StateStore, sagaID string, want Phase) {
	t.Helper()
	for {
		state, err := states.Get(ctx, sagaID)
		if err == nil && state.Phase == want {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for phase %s", want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForStatus(t *testing.T, ctx context.Context, store transaction.Store, id string, want transaction.Status) {
	t.Helper()
	for {
		txn, err := store.FindByID(ctx, id)
		if err == nil && txn.Status == want {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for status %s", want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
