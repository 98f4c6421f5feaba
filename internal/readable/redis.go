package readable

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "eventdash:readable"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every state as JSON on a Redis channel.
type RedisSink struct {
	client  publisher
	channel string
}

// NewRedisSink connects to the Redis server at url and verifies it with a PING.
func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisSink(client, channel), client, nil
}

func newRedisSink(client publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Channel returns the channel states are published on.
func (s *RedisSink) Channel() string { return s.channel }

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal readable state: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish readable state: %w", err)
	}
	return nil
}
