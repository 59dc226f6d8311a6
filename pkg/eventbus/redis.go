package eventbus

import (
	"context"
	"fmt"

	"github.com/goclaw/dayloop/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

// RedisTransport publishes envelopes on Redis pub/sub channels named after
// their subjects.
type RedisTransport struct {
	client goredis.Cmdable
}

// NewRedisTransport wraps a Redis client.
func NewRedisTransport(client goredis.Cmdable) *RedisTransport {
	return &RedisTransport{client: client}
}

// Publish implements Transport.
func (t *RedisTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := t.client.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("eventbus: redis publish %s: %w", subject, err)
	}
	return nil
}

// PatternSubscriber is the part of a Redis client the relay needs.
type PatternSubscriber interface {
	PSubscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// Relay copies actor events published by other nodes from Redis into the
// local bus until ctx ends. Events from nodeID itself are skipped since
// they were already delivered locally.
func Relay(ctx context.Context, client PatternSubscriber, bus Transport, nodeID string, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	ps := client.PSubscribe(ctx, SubjectPrefix+".*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("eventbus: redis subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			raw := []byte(msg.Payload)
			env, err := DecodeEnvelope(raw)
			if err != nil {
				log.Warn("dropping malformed relayed event", "channel", msg.Channel, "error", err)
				continue
			}
			if env.NodeID == nodeID {
				continue
			}
			if err := bus.Publish(ctx, msg.Channel, raw); err != nil {
				log.Warn("relay publish failed", "channel", msg.Channel, "error", err)
			}
		}
	}
}
