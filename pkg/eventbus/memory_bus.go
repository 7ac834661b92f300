package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus is an in-process event channel for tests and single-node
// development. It approximates at-least-once delivery by re-queueing a
// message whose handler returned an error, up to a retry cap.
type MemoryBus struct {
	mu     sync.RWMutex
	queues map[string]chan Message
	closed bool

	// MaxRedeliveries bounds handler retries per message before the message
	// is dropped. Zero means the default.
	MaxRedeliveries int
}

const defaultMemoryRedeliveries = 5

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		queues: make(map[string]chan Message),
	}
}

// Publish enqueues a message on the subject's queue.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}

	queue := b.queue(subject)

	msg := Message{
		Subject:   subject,
		Payload:   append([]byte(nil), payload...),
		Timestamp: time.Now().UTC(),
	}

	select {
	case queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers messages for one subject to the handler until the context
// is cancelled. Multiple concurrent Consume calls on the same subject share
// the queue, matching competing consumers on a broker queue.
func (b *MemoryBus) Consume(ctx context.Context, subject string, handler Handler) error {
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("eventbus: handler cannot be nil")
	}

	queue := b.queue(subject)
	maxRedeliveries := b.MaxRedeliveries
	if maxRedeliveries <= 0 {
		maxRedeliveries = defaultMemoryRedeliveries
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-queue:
			for attempt := 0; ; attempt++ {
				if err := handler(ctx, msg); err == nil {
					break
				}
				if attempt >= maxRedeliveries {
					break
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(10 * time.Millisecond):
				}
			}
		}
	}
}

func (b *MemoryBus) queue(subject string) chan Message {
	b.mu.RLock()
	queue, ok := b.queues[subject]
	b.mu.RUnlock()
	if ok {
		return queue
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if queue, ok = b.queues[subject]; ok {
		return queue
	}
	queue = make(chan Message, 256)
	b.queues[subject] = queue
	return queue
}

// Pending returns the number of undelivered messages on a subject. Test
// helper.
func (b *MemoryBus) Pending(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if queue, ok := b.queues[subject]; ok {
		return len(queue)
	}
	return 0
}
