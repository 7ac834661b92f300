package saga

import (
	"context"
	"fmt"
	"sync"

	"github.com/coinsaga/coinsaga/pkg/eventbus"
	"github.com/coinsaga/coinsaga/pkg/logger"
)

// Listener consumes the outcome subjects and routes decoded events to the
// orchestrator. Malformed messages are logged and acknowledged since
// redelivery cannot fix them; handler errors leave the message
// unacknowledged so the transport retries it.
type Listener struct {
	consumer     eventbus.Consumer
	envelopes    *eventbus.EnvelopeConsumer
	orchestrator *Orchestrator
	log          logger.Logger
	metrics      Recorder
}

// NewListener creates the saga outcome listener.
func NewListener(consumer eventbus.Consumer, orchestrator *Orchestrator, log logger.Logger, metrics Recorder) (*Listener, error) {
	if consumer == nil {
		return nil, fmt.Errorf("saga: consumer cannot be nil")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("saga: orchestrator cannot be nil")
	}
	if log == nil {
		log = logger.Global()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &Listener{
		consumer:     consumer,
		envelopes:    eventbus.NewEnvelopeConsumer(),
		orchestrator: orchestrator,
		log:          log.With("component", "saga-listener"),
		metrics:      metrics,
	}, nil
}

// Run consumes every outcome subject until the context is canceled. It
// returns the first consume error, or nil on clean shutdown.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subjects := eventbus.OutcomeSubjects()
	errs := make(chan error, len(subjects))

	var wg sync.WaitGroup
	for _, subject := range subjects {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			if err := l.consumer.Consume(ctx, subject, l.handle); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("consume %s: %w", subject, err)
				cancel()
			}
		}(subject)
	}
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// handle processes one delivered outcome message.
func (l *Listener) handle(ctx context.Context, msg eventbus.Message) error {
	envelope, err := l.envelopes.Decode(msg.Payload)
	if err != nil {
		l.log.Error("malformed message dropped", "subject", msg.Subject, "error", err)
		return nil
	}

	if l.envelopes.Seen(envelope.EventID) {
		l.metrics.RecordDuplicateDrop()
		l.log.Debug("duplicate delivery dropped",
			"event_id", envelope.EventID, "saga_id", envelope.SagaID)
		return nil
	}

	if err := l.route(ctx, envelope); err != nil {
		l.log.Warn("outcome handling failed, leaving for redelivery",
			"event_id", envelope.EventID, "saga_id", envelope.SagaID, "error", err)
		return err
	}

	l.envelopes.MarkSeen(envelope.EventID)
	return nil
}

func (l *Listener) route(ctx context.Context, envelope eventbus.Envelope) error {
	switch envelope.EventType {
	case eventbus.EventTypeBalanceUpdated, eventbus.EventTypeBalanceUpdateFailed:
		var ev eventbus.BalanceOutcome
		if err := eventbus.DecodePayload(envelope, &ev); err != nil {
			l.log.Error("malformed balance outcome dropped",
				"event_id", envelope.EventID, "error", err)
			return nil
		}
		// The failure subject is authoritative even if the payload flag
		// disagrees.
		if envelope.EventType == eventbus.EventTypeBalanceUpdateFailed {
			ev.Success = false
		}
		return l.orchestrator.HandleBalanceOutcome(ctx, ev)

	case eventbus.EventTypeAssetUpdated, eventbus.EventTypeAssetUpdateFailed:
		var ev eventbus.AssetOutcome
		if err := eventbus.DecodePayload(envelope, &ev); err != nil {
			l.log.Error("malformed asset outcome dropped",
				"event_id", envelope.EventID, "error", err)
			return nil
		}
		if envelope.EventType == eventbus.EventTypeAssetUpdateFailed {
			ev.Success = false
		}
		return l.orchestrator.HandleAssetOutcome(ctx, ev)

	default:
		l.log.Warn("unexpected event type dropped",
			"event_id", envelope.EventID, "event_type", envelope.EventType)
		return nil
	}
}
