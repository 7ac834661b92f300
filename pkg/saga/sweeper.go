package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/coinsaga/coinsaga/pkg/logger"
)

// DefaultSweepInterval is how often the sweeper scans for expired sagas.
const DefaultSweepInterval = 30 * time.Second

// reasonDeadlineExceeded marks transactions failed by the sweeper.
const reasonDeadlineExceeded = "saga deadline exceeded"

// Sweeper periodically reaps sagas that outlived their deadline, typically
// because a remote service never answered or a crash lost an in-flight
// message. An expired saga with a committed first step is compensated before
// it is failed; one with no committed work is failed directly.
type Sweeper struct {
	states       StateStore
	orchestrator *Orchestrator
	interval     time.Duration
	log          logger.Logger
	metrics      Recorder
	now          func() time.Time
}

// NewSweeper creates a saga sweeper.
func NewSweeper(states StateStore, orchestrator *Orchestrator, interval time.Duration, log logger.Logger, metrics Recorder) (*Sweeper, error) {
	if states == nil {
		return nil, fmt.Errorf("saga: state store cannot be nil")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("saga: orchestrator cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = logger.Global()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &Sweeper{
		states:       states,
		orchestrator: orchestrator,
		interval:     interval,
		log:          log.With("component", "saga-sweeper"),
		metrics:      metrics,
		now:          time.Now,
	}, nil
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Error("sweep pass failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over the active sagas and reaps the expired ones.
// Errors on individual sagas are logged and do not stop the pass; those
// sagas are retried on the next interval.
func (s *Sweeper) Sweep(ctx context.Context) error {
	active, err := s.states.ListActive(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for _, state := range active {
		if !state.Expired(now) {
			continue
		}
		if err := s.reap(ctx, state); err != nil {
			s.log.Error("expired saga could not be reaped",
				"saga_id", state.SagaID, "phase", state.Phase.String(), "error", err)
		}
	}
	return nil
}

func (s *Sweeper) reap(ctx context.Context, state *State) error {
	s.metrics.RecordExpiry()
	s.log.Warn("saga expired",
		"saga_id", state.SagaID,
		"transaction_id", state.TransactionID,
		"phase", state.Phase.String(),
		"deadline", state.Deadline)

	if state.Step1Done() && !state.Step2Done() {
		if err := s.orchestrator.compensateStep1(ctx, state); err != nil {
			return err
		}
	}
	return s.orchestrator.failSaga(ctx, state.SagaID, reasonDeadlineExceeded)
}
