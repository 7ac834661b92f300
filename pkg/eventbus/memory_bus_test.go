package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversPublishedMessages(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan Message, 1)
	go func() {
		_ = bus.Consume(ctx, "test.subject", func(_ context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()

	require.NoError(t, bus.Publish(ctx, "test.subject", []byte("payload")))

	select {
	case msg := <-received:
		assert.Equal(t, "test.subject", msg.Subject)
		assert.Equal(t, []byte("payload"), msg.Payload)
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBusRedeliversOnHandlerError(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var attempts int32
	done := make(chan struct{})
	go func() {
		_ = bus.Consume(ctx, "retry.subject", func(_ context.Context, _ Message) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("not yet")
			}
			close(done)
			return nil
		})
	}()

	require.NoError(t, bus.Publish(ctx, "retry.subject", []byte("x")))

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	case <-ctx.Done():
		t.Fatal("timed out waiting for redelivery")
	}
}

func TestMemoryBusCompetingConsumersShareQueue(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const messages = 20
	var handled int32
	done := make(chan struct{})

	handler := func(_ context.Context, _ Message) error {
		if atomic.AddInt32(&handled, 1) == messages {
			close(done)
		}
		return nil
	}
	go func() { _ = bus.Consume(ctx, "shared.subject", handler) }()
	go func() { _ = bus.Consume(ctx, "shared.subject", handler) }()

	for i := 0; i < messages; i++ {
		require.NoError(t, bus.Publish(ctx, "shared.subject", []byte("m")))
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for competing consumers")
	}
	// Each message is handled once, not once per consumer.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(messages), atomic.LoadInt32(&handled))
}

func TestMemoryBusRejectsEmptySubject(t *testing.T) {
	bus := NewMemoryBus()
	assert.Error(t, bus.Publish(context.Background(), "", []byte("x")))
	assert.Error(t, bus.Consume(context.Background(), "", func(context.Context, Message) error { return nil }))
	assert.Error(t, bus.Consume(context.Background(), "s", nil))
}
