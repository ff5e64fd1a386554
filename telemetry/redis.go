package telemetry

import (
	"context"
	"time"

	events "github.com/docker/go-events"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel samples are published on.
const DefaultRedisChannel = "periodic:samples"

const defaultRedisTimeout = time.Second

var _ events.Sink = (*RedisSink)(nil)

// RedisSink publishes samples on a Redis channel. The sink owns the
// client and closes it on Close.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		timeout: defaultRedisTimeout,
	}
}

func (s *RedisSink) Write(event events.Event) error {
	content, err := EncodeSample(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Publish(ctx, s.channel, content).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
