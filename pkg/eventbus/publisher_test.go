package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
}

func (t *flakyTransport) Publish(_ context.Context, subject string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures > 0 {
		t.failures--
		return errors.New("broker down")
	}
	t.subjects = append(t.subjects, subject)
	t.payloads = append(t.payloads, append([]byte(nil), payload...))
	return nil
}

type countingTelemetry struct {
	mu        sync.Mutex
	published map[string]int
	retries   int
	degraded  []bool
}

func (c *countingTelemetry) RecordPublish(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string]int)
	}
	c.published[status]++
}

func (c *countingTelemetry) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func (c *countingTelemetry) SetDegradedMode(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded = append(c.degraded, active)
}

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestPublisherWrapsCommandInEnvelope(t *testing.T) {
	transport := &flakyTransport{}
	publisher, err := NewPublisher("node-1", transport, fastRetryConfig(0), nil)
	require.NoError(t, err)

	cmd := BalanceUpdateCommand{
		SagaID:        "saga-1",
		TransactionID: "txn-1",
		UserID:        "user-1",
		Direction:     DirectionBuy,
	}
	require.NoError(t, publisher.PublishBalanceUpdate(context.Background(), cmd))

	require.Len(t, transport.subjects, 1)
	assert.Equal(t, SubjectBalanceUpdate, transport.subjects[0])

	var envelope Envelope
	require.NoError(t, json.Unmarshal(transport.payloads[0], &envelope))
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, EventTypeBalanceUpdate, envelope.EventType)
	assert.Equal(t, "node-1", envelope.NodeID)
	assert.Equal(t, "saga-1", envelope.SagaID)

	var decoded BalanceUpdateCommand
	require.NoError(t, DecodePayload(envelope, &decoded))
	assert.Equal(t, cmd, decoded)
}

func TestPublisherRetriesUntilSuccess(t *testing.T) {
	transport := &flakyTransport{failures: 2}
	telemetry := &countingTelemetry{}
	publisher, err := NewPublisher("node-1", transport, fastRetryConfig(3), telemetry)
	require.NoError(t, err)

	require.NoError(t, publisher.PublishTransactionCompleted(context.Background(), TransactionCompleted{
		SagaID:        "saga-1",
		TransactionID: "txn-1",
	}))

	assert.Equal(t, 2, telemetry.retries)
	assert.Equal(t, 1, telemetry.published["success"])
	assert.False(t, publisher.Degraded())
}

func TestPublisherGivesUpAfterMaxRetries(t *testing.T) {
	transport := &flakyTransport{failures: 10}
	telemetry := &countingTelemetry{}
	publisher, err := NewPublisher("node-1", transport, fastRetryConfig(2), telemetry)
	require.NoError(t, err)

	err = publisher.PublishTransactionFailed(context.Background(), TransactionFailed{
		SagaID:        "saga-1",
		TransactionID: "txn-1",
		FailureReason: "whatever",
	})
	require.Error(t, err)

	assert.Equal(t, 2, telemetry.retries)
	assert.Equal(t, 1, telemetry.published["failed"])
	assert.True(t, publisher.Degraded())
}

func TestPublisherOutcomeSubjectFollowsSuccessFlag(t *testing.T) {
	transport := &flakyTransport{}
	publisher, err := NewPublisher("balance-1", transport, fastRetryConfig(0), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, publisher.PublishBalanceOutcome(ctx, BalanceOutcome{
		SagaID: "s", TransactionID: "t", Success: true,
	}))
	require.NoError(t, publisher.PublishBalanceOutcome(ctx, BalanceOutcome{
		SagaID: "s", TransactionID: "t", Success: false, FailureReason: "nope",
	}))
	require.NoError(t, publisher.PublishAssetOutcome(ctx, AssetOutcome{
		SagaID: "s", TransactionID: "t", Success: false, FailureReason: "nope",
	}))

	assert.Equal(t, []string{
		SubjectBalanceUpdated,
		SubjectBalanceUpdateFailed,
		SubjectAssetUpdateFailed,
	}, transport.subjects)
}

func TestPublisherRejectsInvalidConfig(t *testing.T) {
	transport := &flakyTransport{}

	_, err := NewPublisher("", transport, DefaultRetryConfig(), nil)
	assert.Error(t, err)

	_, err = NewPublisher("node-1", nil, DefaultRetryConfig(), nil)
	assert.Error(t, err)

	bad := DefaultRetryConfig()
	bad.BackoffFactor = 0.5
	_, err = NewPublisher("node-1", transport, bad, nil)
	assert.Error(t, err)
}
