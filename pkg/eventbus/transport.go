package eventbus

import (
	"context"
	"time"
)

// Message is a delivered event-channel message.
type Message struct {
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// Handler processes one delivered message. A non-nil error leaves the message
// unacknowledged so the transport redelivers it; a nil return acknowledges it
// even when the consumer decided to drop the message.
type Handler func(ctx context.Context, msg Message) error

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Consumer delivers messages for a subject to a handler. Consume blocks until
// the context is cancelled. Delivery is at-least-once: handlers must tolerate
// duplicates.
type Consumer interface {
	Consume(ctx context.Context, subject string, handler Handler) error
}

// Bus combines both sides of the event channel.
type Bus interface {
	Transport
	Consumer
}
