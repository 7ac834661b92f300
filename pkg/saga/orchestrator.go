package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coinsaga/coinsaga/pkg/eventbus"
	"github.com/coinsaga/coinsaga/pkg/logger"
	"github.com/coinsaga/coinsaga/pkg/transaction"
)

// DefaultDeadline bounds how long a saga may stay in flight before the
// sweeper forces it to a terminal state.
const DefaultDeadline = 5 * time.Minute

// Publisher is the outbound message surface the orchestrator needs.
// *eventbus.Publisher satisfies it.
type Publisher interface {
	PublishBalanceUpdate(ctx context.Context, cmd eventbus.BalanceUpdateCommand) error
	PublishAssetUpdate(ctx context.Context, cmd eventbus.AssetUpdateCommand) error
	PublishTransactionCompleted(ctx context.Context, ev eventbus.TransactionCompleted) error
	PublishTransactionFailed(ctx context.Context, ev eventbus.TransactionFailed) error
}

// leg names which remote service an outcome came from.
type leg int

const (
	legBalance leg = iota
	legAsset
)

func (l leg) String() string {
	if l == legBalance {
		return "balance"
	}
	return "asset"
}

// Orchestrator drives each transaction saga: it dispatches the kind-ordered
// step commands, reacts to service outcomes, compensates committed work when
// a later step fails, and finalizes the transaction record. Handlers return
// nil when the message is consumed (including deliberate drops) and an error
// only when redelivery should retry.
//
// Buys debit the balance first and credit assets second; sells debit assets
// first and credit the balance second, so the step that owns the user's
// committed value always runs before the step that grants the proceeds.
type Orchestrator struct {
	states       StateStore
	transactions transaction.Store
	publisher    Publisher
	deadline     time.Duration
	log          logger.Logger
	metrics      Recorder
}

// NewOrchestrator creates a saga orchestrator.
func NewOrchestrator(states StateStore, transactions transaction.Store, publisher Publisher, deadline time.Duration, log logger.Logger, metrics Recorder) (*Orchestrator, error) {
	if states == nil {
		return nil, fmt.Errorf("saga: state store cannot be nil")
	}
	if transactions == nil {
		return nil, fmt.Errorf("saga: transaction store cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("saga: publisher cannot be nil")
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if log == nil {
		log = logger.Global()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &Orchestrator{
		states:       states,
		transactions: transactions,
		publisher:    publisher,
		deadline:     deadline,
		log:          log.With("component", "saga-orchestrator"),
		metrics:      metrics,
	}, nil
}

// Start begins a saga for a freshly persisted pending transaction: it
// records the saga state and dispatches the first step command.
func (o *Orchestrator) Start(ctx context.Context, txn *transaction.Transaction) error {
	if txn == nil {
		return fmt.Errorf("saga: transaction cannot be nil")
	}
	if !txn.Kind.Valid() {
		return fmt.Errorf("saga: unknown transaction kind %q", txn.Kind)
	}

	state := NewState(txn, o.deadline)
	if err := o.states.Create(ctx, state); err != nil {
		return err
	}
	o.metrics.RecordSagaStarted(string(txn.Kind))
	o.log.Info("saga started",
		"saga_id", state.SagaID,
		"transaction_id", txn.ID,
		"kind", string(txn.Kind))

	state, err := o.states.Mutate(ctx, state.SagaID, func(s *State) error {
		return s.TransitionTo(PhaseStep1Pending)
	})
	if err != nil {
		return err
	}

	if err := o.dispatchStep(ctx, state, txn, 1, false); err != nil {
		o.log.Error("first saga step could not be dispatched",
			"saga_id", state.SagaID, "error", err)
		return o.failSaga(ctx, state.SagaID, "failed to dispatch first step")
	}
	return nil
}

// HandleBalanceOutcome reacts to a balance service response.
func (o *Orchestrator) HandleBalanceOutcome(ctx context.Context, ev eventbus.BalanceOutcome) error {
	return o.handleOutcome(ctx, ev.SagaID, legBalance, ev.Success, ev.FailureReason)
}

// HandleAssetOutcome reacts to an asset service response.
func (o *Orchestrator) HandleAssetOutcome(ctx context.Context, ev eventbus.AssetOutcome) error {
	return o.handleOutcome(ctx, ev.SagaID, legAsset, ev.Success, ev.FailureReason)
}

func (o *Orchestrator) handleOutcome(ctx context.Context, sagaID string, from leg, success bool, reason string) error {
	state, err := o.states.Get(ctx, sagaID)
	if errors.Is(err, ErrSagaNotFound) {
		o.metrics.RecordUnknownSagaDrop()
		o.log.Warn("outcome for unknown saga dropped",
			"saga_id", sagaID, "leg", from.String(), "success", success)
		return nil
	}
	if err != nil {
		return err
	}

	// A terminal saga still on record means an earlier finalization was cut
	// short; finish the cleanup instead of reprocessing the outcome.
	if state.Phase.IsTerminal() {
		return o.settle(ctx, state)
	}

	if reason == "" {
		reason = fmt.Sprintf("%s update failed", from)
	}

	if o.isFirstStep(state.Kind, from) {
		return o.handleStep1(ctx, state, from, success, reason)
	}
	return o.handleStep2(ctx, state, from, success, reason)
}

// isFirstStep reports whether the given leg is the first step for the kind.
func (o *Orchestrator) isFirstStep(kind transaction.Kind, from leg) bool {
	if kind == transaction.KindBuy {
		return from == legBalance
	}
	return from == legAsset
}

func (o *Orchestrator) handleStep1(ctx context.Context, state *State, from leg, success bool, reason string) error {
	if !success {
		// Nothing has been committed remotely, so there is nothing to
		// compensate.
		o.log.Info("first saga step failed",
			"saga_id", state.SagaID, "leg", from.String(), "reason", reason)
		return o.failSaga(ctx, state.SagaID, reason)
	}

	if state.Step1Done() {
		// Already processed: emitting the second command again would double
		// it. If the original step-2 dispatch was lost, the sweeper fails
		// the saga at its deadline.
		o.metrics.RecordDuplicateDrop()
		o.log.Debug("duplicate first-step outcome dropped", "saga_id", state.SagaID)
		return nil
	}

	state, err := o.states.Mutate(ctx, state.SagaID, func(s *State) error {
		o.markLeg(s, from)
		return s.TransitionTo(PhaseStep2Pending)
	})
	if errors.Is(err, ErrSagaNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return o.dispatchStepForSaga(ctx, state, 2, false)
}

func (o *Orchestrator) handleStep2(ctx context.Context, state *State, from leg, success bool, reason string) error {
	if !state.Step1Done() {
		o.log.Warn("second-step outcome before first step settled, dropped",
			"saga_id", state.SagaID, "leg", from.String())
		return nil
	}

	if success {
		if state.Step2Done() {
			o.metrics.RecordDuplicateDrop()
			o.log.Debug("duplicate second-step outcome dropped", "saga_id", state.SagaID)
			return nil
		}
		state, err := o.states.Mutate(ctx, state.SagaID, func(s *State) error {
			o.markLeg(s, from)
			return s.TransitionTo(PhaseCompleted)
		})
		if errors.Is(err, ErrSagaNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return o.settle(ctx, state)
	}

	// The first step committed real value, so it must be reversed before the
	// saga may finalize as failed.
	state, err := o.states.Mutate(ctx, state.SagaID, func(s *State) error {
		s.FailureReason = reason
		return s.TransitionTo(PhaseCompensating)
	})
	if errors.Is(err, ErrSagaNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := o.compensateStep1(ctx, state); err != nil {
		return err
	}
	return o.failSaga(ctx, state.SagaID, reason)
}

// compensateStep1 emits the inverse command for the committed first step.
// Returning an error keeps the saga in compensating so redelivery retries
// the hand-off; the saga never finalizes failed without it.
func (o *Orchestrator) compensateStep1(ctx context.Context, state *State) error {
	txn, err := o.transactions.FindBySagaID(ctx, state.SagaID)
	if err != nil {
		var notFound *transaction.NotFoundError
		if errors.As(err, &notFound) {
			o.log.Error("transaction record missing, compensation skipped",
				"saga_id", state.SagaID)
			return nil
		}
		return err
	}

	if err := o.dispatchStep(ctx, state, txn, 1, true); err != nil {
		o.log.Error("compensation could not be dispatched",
			"saga_id", state.SagaID, "error", err)
		return err
	}
	o.metrics.RecordCompensation(string(state.Kind))
	o.log.Info("compensation dispatched",
		"saga_id", state.SagaID, "kind", string(state.Kind))
	return nil
}

// dispatchStepForSaga loads the transaction record and dispatches the given
// step. A missing record is logged and dropped; the sweeper will reap the
// saga at its deadline.
func (o *Orchestrator) dispatchStepForSaga(ctx context.Context, state *State, step int, compensation bool) error {
	txn, err := o.transactions.FindBySagaID(ctx, state.SagaID)
	if err != nil {
		var notFound *transaction.NotFoundError
		if errors.As(err, &notFound) {
			o.log.Error("transaction record missing, step not dispatched",
				"saga_id", state.SagaID, "step", step)
			return nil
		}
		return err
	}
	return o.dispatchStep(ctx, state, txn, step, compensation)
}

// dispatchStep emits the command for one saga step. For buys step 1 is the
// balance debit and step 2 the asset credit; sells invert that. A
// compensating dispatch targets the same leg with the inverse direction.
func (o *Orchestrator) dispatchStep(ctx context.Context, state *State, txn *transaction.Transaction, step int, compensation bool) error {
	direction := eventbus.Direction(txn.Kind)
	if compensation {
		direction = direction.Inverse()
	}

	balanceLeg := step == 1
	if txn.Kind == transaction.KindSell {
		balanceLeg = !balanceLeg
	}

	if balanceLeg {
		return o.publisher.PublishBalanceUpdate(ctx, eventbus.BalanceUpdateCommand{
			SagaID:        state.SagaID,
			TransactionID: txn.ID,
			UserID:        txn.UserID,
			Amount:        txn.TotalValue,
			Direction:     direction,
			Compensation:  compensation,
		})
	}
	return o.publisher.PublishAssetUpdate(ctx, eventbus.AssetUpdateCommand{
		SagaID:        state.SagaID,
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		AssetID:       txn.AssetID,
		Quantity:      txn.Quantity,
		Direction:     direction,
		Compensation:  compensation,
	})
}

func (o *Orchestrator) markLeg(state *State, from leg) {
	if from == legBalance {
		state.BalanceUpdated = true
		return
	}
	state.AssetsUpdated = true
}

// failSaga moves the saga to failed and settles it. Callable from any
// non-terminal phase; an already-terminal saga settles as recorded.
func (o *Orchestrator) failSaga(ctx context.Context, sagaID, reason string) error {
	state, err := o.states.Mutate(ctx, sagaID, func(s *State) error {
		if s.Phase.IsTerminal() {
			return nil
		}
		s.FailureReason = reason
		return s.TransitionTo(PhaseFailed)
	})
	if errors.Is(err, ErrSagaNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.settle(ctx, state)
}

// settle finishes a terminal saga: update the transaction record, broadcast
// the terminal event, then drop the saga state. Each part tolerates having
// already run, so an interrupted settle resumes on the next delivery.
func (o *Orchestrator) settle(ctx context.Context, state *State) error {
	status := transaction.StatusCompleted
	if state.Phase == PhaseFailed {
		status = transaction.StatusFailed
	}

	if err := o.transactions.UpdateStatus(ctx, state.TransactionID, status, state.FailureReason); err != nil {
		var notFound *transaction.NotFoundError
		if errors.As(err, &notFound) {
			o.log.Error("transaction record missing during finalization",
				"saga_id", state.SagaID, "transaction_id", state.TransactionID)
		} else {
			return err
		}
	}

	var publishErr error
	if status == transaction.StatusCompleted {
		publishErr = o.publisher.PublishTransactionCompleted(ctx, eventbus.TransactionCompleted{
			SagaID:        state.SagaID,
			TransactionID: state.TransactionID,
		})
	} else {
		publishErr = o.publisher.PublishTransactionFailed(ctx, eventbus.TransactionFailed{
			SagaID:        state.SagaID,
			TransactionID: state.TransactionID,
			FailureReason: state.FailureReason,
		})
	}
	if publishErr != nil {
		return publishErr
	}

	if err := o.states.Remove(ctx, state.SagaID); err != nil {
		return err
	}

	o.metrics.RecordSagaFinished(string(state.Kind), string(status))
	o.log.Info("saga finished",
		"saga_id", state.SagaID,
		"transaction_id", state.TransactionID,
		"result", string(status),
		"reason", state.FailureReason)
	return nil
}
