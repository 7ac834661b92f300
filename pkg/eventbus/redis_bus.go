package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBus is a Redis Streams-backed event channel. Each subject maps to one
// stream; point-to-point consumption uses a consumer group, so unacknowledged
// entries are redelivered (at-least-once). Terminal broadcast subjects work
// the same way: every interested service consumes with its own group and gets
// its own copy of the stream.
type RedisBus struct {
	client   redis.UniversalClient
	prefix   string
	group    string
	consumer string
	block    time.Duration
	minIdle  time.Duration
}

// RedisBusConfig configures a RedisBus.
type RedisBusConfig struct {
	// StreamPrefix is prepended to every stream key.
	StreamPrefix string
	// Group is the consumer group name.
	Group string
	// Consumer is this instance's consumer name; generated when empty.
	Consumer string
	// BlockTimeout is how long one read blocks waiting for entries.
	BlockTimeout time.Duration
	// ClaimMinIdle is the pending-entry idle time before this consumer
	// claims entries a crashed consumer left unacknowledged.
	ClaimMinIdle time.Duration
}

const payloadField = "payload"

// NewRedisBus creates a Redis Streams event bus.
func NewRedisBus(client redis.UniversalClient, cfg RedisBusConfig) (*RedisBus, error) {
	if client == nil {
		return nil, fmt.Errorf("eventbus: redis client cannot be nil")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("eventbus: consumer group cannot be empty")
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "coinsaga:"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = cfg.Group + "-" + uuid.NewString()[:8]
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 30 * time.Second
	}
	return &RedisBus{
		client:   client,
		prefix:   cfg.StreamPrefix,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		block:    cfg.BlockTimeout,
		minIdle:  cfg.ClaimMinIdle,
	}, nil
}

func (b *RedisBus) streamKey(subject string) string {
	return b.prefix + subject
}

// Publish appends the payload to the subject's stream.
func (b *RedisBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey(subject),
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("eventbus: xadd %s: %w", subject, err)
	}
	return nil
}

// Consume reads the subject's stream through the consumer group and delivers
// entries to the handler. Acknowledgement happens only after the handler
// returns nil; entries left pending by a crash are claimed once their idle
// time exceeds the configured minimum. Blocks until the context is cancelled.
func (b *RedisBus) Consume(ctx context.Context, subject string, handler Handler) error {
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("eventbus: handler cannot be nil")
	}

	stream := b.streamKey(subject)
	if err := b.ensureGroup(ctx, stream); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.claimStale(ctx, stream, subject, handler)

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // read timed out, poll again
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Transient transport error: back off briefly and retry.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				b.deliver(ctx, stream, subject, entry, handler)
			}
		}
	}
}

func (b *RedisBus) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("eventbus: create group %s on %s: %w", b.group, stream, err)
	}
	return nil
}

// claimStale takes over pending entries whose consumer stopped acknowledging.
func (b *RedisBus) claimStale(ctx context.Context, stream, subject string, handler Handler) {
	entries, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    b.group,
		Consumer: b.consumer,
		MinIdle:  b.minIdle,
		Start:    "0-0",
		Count:    16,
	}).Result()
	if err != nil {
		return
	}
	for _, entry := range entries {
		b.deliver(ctx, stream, subject, entry, handler)
	}
}

func (b *RedisBus) deliver(ctx context.Context, stream, subject string, entry redis.XMessage, handler Handler) {
	raw, ok := entry.Values[payloadField].(string)
	if !ok {
		// Malformed entry: acknowledge so it does not loop forever.
		b.client.XAck(ctx, stream, b.group, entry.ID)
		return
	}

	msg := Message{
		Subject:   subject,
		Payload:   []byte(raw),
		Timestamp: time.Now().UTC(),
	}
	if err := handler(ctx, msg); err != nil {
		return // leave pending for redelivery
	}
	b.client.XAck(ctx, stream, b.group, entry.ID)
}
