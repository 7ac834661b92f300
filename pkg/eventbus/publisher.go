package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Telemetry records publish pipeline health.
type Telemetry interface {
	RecordPublish(status string)
	RecordRetry()
	SetDegradedMode(active bool)
}

type nopTelemetry struct{}

func (nopTelemetry) RecordPublish(status string) {}
func (nopTelemetry) RecordRetry()                {}
func (nopTelemetry) SetDegradedMode(active bool) {}

// RetryConfig controls retry/backoff behavior for publish attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2,
	}
}

// Publisher publishes saga commands and events with retry and backoff. A nil
// return means the message was durably handed to the transport; callers that
// must not proceed without the hand-off (compensation emission in particular)
// rely on that contract.
type Publisher struct {
	transport Transport
	nodeID    string
	retry     RetryConfig
	telemetry Telemetry

	mu       sync.Mutex
	degraded bool
}

// NewPublisher creates a saga publisher.
func NewPublisher(nodeID string, transport Transport, retry RetryConfig, telemetry Telemetry) (*Publisher, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("eventbus: node id cannot be empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("eventbus: transport cannot be nil")
	}
	if retry.MaxRetries < 0 {
		return nil, fmt.Errorf("eventbus: max retries cannot be negative")
	}
	if retry.InitialBackoff <= 0 || retry.MaxBackoff <= 0 || retry.BackoffFactor < 1 {
		return nil, fmt.Errorf("eventbus: invalid retry config")
	}
	if telemetry == nil {
		telemetry = nopTelemetry{}
	}
	return &Publisher{
		transport: transport,
		nodeID:    nodeID,
		retry:     retry,
		telemetry: telemetry,
	}, nil
}

// PublishBalanceUpdate sends a balance command to the balance service.
func (p *Publisher) PublishBalanceUpdate(ctx context.Context, cmd BalanceUpdateCommand) error {
	return p.publish(ctx, SubjectBalanceUpdate, EventTypeBalanceUpdate, cmd.SagaID, cmd.TransactionID, cmd)
}

// PublishAssetUpdate sends an asset command to the asset service.
func (p *Publisher) PublishAssetUpdate(ctx context.Context, cmd AssetUpdateCommand) error {
	return p.publish(ctx, SubjectAssetUpdate, EventTypeAssetUpdate, cmd.SagaID, cmd.TransactionID, cmd)
}

// PublishTransactionCompleted broadcasts a successful terminal outcome.
func (p *Publisher) PublishTransactionCompleted(ctx context.Context, ev TransactionCompleted) error {
	return p.publish(ctx, SubjectTransactionCompleted, EventTypeTransactionCompleted, ev.SagaID, ev.TransactionID, ev)
}

// PublishTransactionFailed broadcasts a failed terminal outcome.
func (p *Publisher) PublishTransactionFailed(ctx context.Context, ev TransactionFailed) error {
	return p.publish(ctx, SubjectTransactionFailed, EventTypeTransactionFailed, ev.SagaID, ev.TransactionID, ev)
}

// PublishBalanceOutcome sends a balance service response. Used by the balance
// service side of the contract and by tests driving the orchestrator.
func (p *Publisher) PublishBalanceOutcome(ctx context.Context, ev BalanceOutcome) error {
	subject, eventType := SubjectBalanceUpdated, EventTypeBalanceUpdated
	if !ev.Success {
		subject, eventType = SubjectBalanceUpdateFailed, EventTypeBalanceUpdateFailed
	}
	return p.publish(ctx, subject, eventType, ev.SagaID, ev.TransactionID, ev)
}

// PublishAssetOutcome sends an asset service response.
func (p *Publisher) PublishAssetOutcome(ctx context.Context, ev AssetOutcome) error {
	subject, eventType := SubjectAssetUpdated, EventTypeAssetUpdated
	if !ev.Success {
		subject, eventType = SubjectAssetUpdateFailed, EventTypeAssetUpdateFailed
	}
	return p.publish(ctx, subject, eventType, ev.SagaID, ev.TransactionID, ev)
}

func (p *Publisher) publish(ctx context.Context, subject, eventType, sagaID, transactionID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope, err := BuildEnvelope(BuildEnvelopeInput{
		EventType:     eventType,
		NodeID:        p.nodeID,
		SagaID:        sagaID,
		TransactionID: transactionID,
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	backoff := p.retry.InitialBackoff
	var publishErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		publishErr = p.transport.Publish(ctx, subject, body)
		if publishErr == nil {
			p.telemetry.RecordPublish("success")
			p.setDegraded(false)
			return nil
		}
		if attempt == p.retry.MaxRetries {
			break
		}
		p.telemetry.RecordRetry()
		p.setDegraded(true)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, p.retry.MaxBackoff, p.retry.BackoffFactor)
	}

	p.telemetry.RecordPublish("failed")
	p.setDegraded(true)
	return fmt.Errorf("eventbus: publish %s failed: %w", subject, publishErr)
}

// Degraded reports whether the publisher currently considers the bus degraded.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Publisher) setDegraded(active bool) {
	p.mu.Lock()
	changed := p.degraded != active
	p.degraded = active
	p.mu.Unlock()
	if changed {
		p.telemetry.SetDegradedMode(active)
	}
}

func nextBackoff(current, max time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
