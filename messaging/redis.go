package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentgate/mcp-gateway-go/mcp"
)

// RedisConfig configures the Redis-backed sink.
type RedisConfig struct {
	// Client is the Redis client to use. If nil, a default client is built
	// for Addr.
	Client redis.UniversalClient
	// Addr is the Redis address used when Client is nil.
	Addr string
	// KeyPrefix is prepended to every pub/sub channel name. Defaults to
	// "gateway:messages:".
	KeyPrefix string
}

// RedisSink publishes each message of a batch to its recipient's pub/sub
// channel, so recipients connected to other gateway instances still receive
// it. Delivery is fire-and-forget: a recipient with no active subscriber
// simply misses the message, matching Redis pub/sub semantics.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSink builds the sink and verifies connectivity.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr})
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gateway:messages:"
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSink{client: client, prefix: prefix}, nil
}

// SendBatch publishes every message. The batch is accepted only as a whole: a
// publish failure fails the call and reports how many messages went out.
func (s *RedisSink) SendBatch(ctx context.Context, msgs []mcp.BatchMessage) (*mcp.SendBatchResult, error) {
	accepted := 0
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return &mcp.SendBatchResult{Accepted: accepted}, fmt.Errorf("marshal message: %w", err)
		}
		if err := s.client.Publish(ctx, s.channel(m.Recipient), payload).Err(); err != nil {
			return &mcp.SendBatchResult{Accepted: accepted}, fmt.Errorf("publish to %s: %w", m.Recipient, err)
		}
		accepted++
	}
	return &mcp.SendBatchResult{Accepted: accepted}, nil
}

// Subscribe delivers messages published for the recipient until ctx ends.
// Messages that fail to decode are skipped.
func (s *RedisSink) Subscribe(ctx context.Context, recipient string) (<-chan mcp.BatchMessage, error) {
	sub := s.client.Subscribe(ctx, s.channel(recipient))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe for %s: %w", recipient, err)
	}

	out := make(chan mcp.BatchMessage)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Channel():
				if !ok {
					return
				}
				var m mcp.BatchMessage
				if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) channel(recipient string) string {
	return s.prefix + recipient
}
