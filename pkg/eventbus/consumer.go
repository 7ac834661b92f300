package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EnvelopeConsumer decodes envelopes and tracks processed event ids so
// duplicate deliveries can be suppressed. Callers mark an event only after
// its handler succeeds; a redelivery caused by a handler error is then not
// mistaken for a duplicate. The seen-set is per process and bounded, so
// handlers must still be idempotent.
type EnvelopeConsumer struct {
	mu         sync.Mutex
	seenEvents map[string]struct{}
	seenOrder  []string
	maxSeen    int
}

const defaultMaxSeenEvents = 8192

// NewEnvelopeConsumer creates an envelope consumer.
func NewEnvelopeConsumer() *EnvelopeConsumer {
	return &EnvelopeConsumer{
		seenEvents: make(map[string]struct{}),
		maxSeen:    defaultMaxSeenEvents,
	}
}

// Decode decodes raw event bytes into an envelope.
func (c *EnvelopeConsumer) Decode(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: invalid envelope json: %w", err)
	}
	if envelope.EventID == "" {
		return Envelope{}, fmt.Errorf("eventbus: envelope missing event id")
	}
	return envelope, nil
}

// Seen reports whether the event id was already processed.
func (c *EnvelopeConsumer) Seen(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.seenEvents[eventID]
	return exists
}

// MarkSeen records an event id as processed, evicting the oldest beyond the
// cap.
func (c *EnvelopeConsumer) MarkSeen(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.seenEvents[eventID]; exists {
		return
	}
	c.seenEvents[eventID] = struct{}{}
	c.seenOrder = append(c.seenOrder, eventID)
	for len(c.seenOrder) > c.maxSeen {
		oldest := c.seenOrder[0]
		c.seenOrder = c.seenOrder[1:]
		delete(c.seenEvents, oldest)
	}
}

// DecodePayload unmarshals an envelope payload into out.
func DecodePayload(envelope Envelope, out any) error {
	if err := json.Unmarshal(envelope.Payload, out); err != nil {
		return fmt.Errorf("eventbus: decode %s payload: %w", envelope.EventType, err)
	}
	return nil
}
