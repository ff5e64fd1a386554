package collector

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sagernet/sing-periodic/telemetry"
	E "github.com/sagernet/sing/common/exceptions"
)

const (
	transportUDP       = "udp"
	transportRedis     = "redis"
	transportWebSocket = "websocket"
)

// ServeUDP reads one sample per datagram from conn until ctx is done.
func (c *Collector) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	buffer := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return E.Cause(err, "read telemetry datagram")
		}
		c.ingest(transportUDP, buffer[:n])
	}
}

// ServeRedis consumes samples published on channel until ctx is done.
func (c *Collector) ServeRedis(ctx context.Context, client *redis.Client, channel string) error {
	if channel == "" {
		channel = telemetry.DefaultRedisChannel
	}
	subscription := client.Subscribe(ctx, channel)
	defer subscription.Close()
	_, err := subscription.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return E.Cause(err, "subscribe to ", channel)
	}
	messages := subscription.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			c.ingest(transportRedis, []byte(message.Payload))
		}
	}
}

func (c *Collector) ingest(transport string, content []byte) {
	sample, err := telemetry.DecodeSample(content)
	if err != nil {
		MalformedSamples.WithLabelValues(transport).Inc()
		c.debug("collector: drop ", transport, " message: ", err)
		return
	}
	SamplesReceived.WithLabelValues(transport).Inc()
	c.Add(sample)
}
