// Package saga implements the transaction saga orchestrator: a state machine
// that drives a buy or sell across the balance and asset services using only
// asynchronous messages, compensating the first step when the second fails.
package saga

import (
	"fmt"
	"time"

	"github.com/coinsaga/coinsaga/pkg/transaction"
)

// Phase is the lifecycle phase of one saga.
type Phase int

const (
	PhaseInitiated Phase = iota
	PhaseStep1Pending
	PhaseStep2Pending
	PhaseCompensating
	PhaseCompleted
	PhaseFailed
)

var validTransitions = map[Phase]map[Phase]struct{}{
	PhaseInitiated: {
		PhaseStep1Pending: {},
		PhaseFailed:       {},
	},
	PhaseStep1Pending: {
		PhaseStep2Pending: {},
		PhaseFailed:       {},
	},
	PhaseStep2Pending: {
		PhaseCompleted:    {},
		PhaseCompensating: {},
		PhaseFailed:       {},
	},
	PhaseCompensating: {
		PhaseFailed: {},
	},
}

// String returns the string form of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhaseStep1Pending:
		return "step1-pending"
	case PhaseStep2Pending:
		return "step2-pending"
	case PhaseCompensating:
		return "compensating"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the phase is terminal.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CanTransitionTo checks whether a phase transition is valid. Self
// transitions are allowed so redelivered messages can re-apply a step.
func (p Phase) CanTransitionTo(next Phase) bool {
	if p == next {
		return true
	}
	validNext, ok := validTransitions[p]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateTransition validates transition semantics.
func ValidateTransition(current, next Phase) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid saga phase transition: %s -> %s", current, next)
	}
	return nil
}

// State is the durable progress record of one saga, keyed by saga id. Step
// flags only ever transition false to true; compensation is a new outbound
// command, never a flag reset.
type State struct {
	SagaID         string           `json:"saga_id"`
	TransactionID  string           `json:"transaction_id"`
	Kind           transaction.Kind `json:"kind"`
	Phase          Phase            `json:"phase"`
	BalanceUpdated bool             `json:"balance_updated"`
	AssetsUpdated  bool             `json:"assets_updated"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	Deadline       time.Time        `json:"deadline"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewState creates the initial state for a transaction's saga.
func NewState(txn *transaction.Transaction, deadline time.Duration) *State {
	now := time.Now().UTC()
	return &State{
		SagaID:        txn.SagaID,
		TransactionID: txn.ID,
		Kind:          txn.Kind,
		Phase:         PhaseInitiated,
		Deadline:      now.Add(deadline),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionTo applies a phase transition.
func (s *State) TransitionTo(next Phase) error {
	if err := ValidateTransition(s.Phase, next); err != nil {
		return err
	}
	s.Phase = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Step1Done reports whether the kind-dependent first step has succeeded.
// Buys settle the balance first; sells settle the assets first.
func (s *State) Step1Done() bool {
	if s.Kind == transaction.KindBuy {
		return s.BalanceUpdated
	}
	return s.AssetsUpdated
}

// Step2Done reports whether the kind-dependent second step has succeeded.
func (s *State) Step2Done() bool {
	if s.Kind == transaction.KindBuy {
		return s.AssetsUpdated
	}
	return s.BalanceUpdated
}

// Expired reports whether the saga has outlived its deadline.
func (s *State) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

func cloneState(s *State) *State {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
