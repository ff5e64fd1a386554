// Package collector receives samples pushed by the telemetry sinks, keeps
// the most recent ones and re-broadcasts them to viewers.
package collector

import (
	"sync"

	events "github.com/docker/go-events"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	"github.com/sagernet/sing/common/logger"
)

// DefaultCapacity is the number of samples kept for new viewers.
const DefaultCapacity = 1000

const defaultSubscriptionBuffer = 64

type Options struct {
	Capacity int
	Logger   logger.Logger
}

type Collector struct {
	logger      logger.Logger
	access      sync.RWMutex
	history     *congestion_periodic.History
	broadcaster *events.Broadcaster
}

func New(options Options) *Collector {
	capacity := options.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Collector{
		logger:      options.Logger,
		history:     congestion_periodic.NewHistory(capacity),
		broadcaster: events.NewBroadcaster(),
	}
}

// Add stores a sample and passes it to every subscriber.
func (c *Collector) Add(sample congestion_periodic.Sample) {
	c.access.Lock()
	c.history.Push(sample)
	c.access.Unlock()
	LatestWindow.Set(float64(sample.Window))
	LatestAcked.Set(sample.AckedBytes)
	LatestRTT.Set(sample.LatestRTT.Seconds())
	_ = c.broadcaster.Write(sample)
}

// Snapshot returns the stored samples, oldest first.
func (c *Collector) Snapshot() []congestion_periodic.Sample {
	c.access.RLock()
	defer c.access.RUnlock()
	return c.history.Samples()
}

// Subscription delivers samples added after it was created. Samples are
// dropped while C is full.
type Subscription struct {
	C         <-chan congestion_periodic.Sample
	sink      *droppingSink
	collector *Collector
	closeOnce sync.Once
}

func (c *Collector) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sink := &droppingSink{channel: make(chan congestion_periodic.Sample, buffer)}
	_ = c.broadcaster.Add(sink)
	return &Subscription{C: sink.channel, sink: sink, collector: c}
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		_ = s.collector.broadcaster.Remove(s.sink)
	})
}

// Close stops delivery to subscribers.
func (c *Collector) Close() error {
	return c.broadcaster.Close()
}

func (c *Collector) debug(message ...any) {
	if c.logger != nil {
		c.logger.Debug(message...)
	}
}

type droppingSink struct {
	channel chan congestion_periodic.Sample
}

func (s *droppingSink) Write(event events.Event) error {
	sample, ok := event.(congestion_periodic.Sample)
	if !ok {
		return nil
	}
	select {
	case s.channel <- sample:
	default:
		SubscriberDrops.Inc()
	}
	return nil
}

func (s *droppingSink) Close() error {
	return nil
}
