package telemetry

import (
	"sync"
	"sync/atomic"

	events "github.com/docker/go-events"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	"github.com/sagernet/sing/common/logger"
)

// DefaultQueueSize is the number of samples buffered between the controller
// and the sink.
const DefaultQueueSize = 256

const (
	dropReasonFull   = "full"
	dropReasonSink   = "sink"
	dropReasonClosed = "closed"
)

var (
	_ congestion_periodic.SampleEmitter = (*Emitter)(nil)
	_ congestion_periodic.SampleEmitter = NopEmitter{}
)

// NopEmitter discards every sample.
type NopEmitter struct{}

func (NopEmitter) Emit(congestion_periodic.Sample) {}

type EmitterOptions struct {
	QueueSize int
	Logger    logger.Logger
}

// DropStats counts samples the emitter dropped, by reason.
type DropStats struct {
	Full   uint64
	Sink   uint64
	Closed uint64
}

// Emitter forwards samples to a sink from its own goroutine. Emit never
// blocks: when the queue is full the sample is dropped. A nil *Emitter
// drops everything silently.
type Emitter struct {
	sink    events.Sink
	logger  logger.Logger
	queue   chan congestion_periodic.Sample
	closing chan struct{}
	done    chan struct{}

	droppedFull   atomic.Uint64
	droppedSink   atomic.Uint64
	droppedClosed atomic.Uint64
	sent          atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

func NewEmitter(sink events.Sink, options EmitterOptions) *Emitter {
	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Emitter{
		sink:    sink,
		logger:  options.Logger,
		queue:   make(chan congestion_periodic.Sample, queueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) Emit(sample congestion_periodic.Sample) {
	if e == nil {
		return
	}
	select {
	case <-e.closing:
		e.droppedClosed.Add(1)
		SamplesDropped.WithLabelValues(dropReasonClosed).Inc()
		return
	default:
	}
	select {
	case e.queue <- sample:
	default:
		e.droppedFull.Add(1)
		SamplesDropped.WithLabelValues(dropReasonFull).Inc()
	}
}

func (e *Emitter) Dropped() DropStats {
	return DropStats{
		Full:   e.droppedFull.Load(),
		Sink:   e.droppedSink.Load(),
		Closed: e.droppedClosed.Load(),
	}
}

// Sent returns the number of samples the sink accepted.
func (e *Emitter) Sent() uint64 {
	return e.sent.Load()
}

// Close stops the worker after it has written the samples already queued,
// then closes the sink.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		close(e.closing)
		<-e.done
		e.closeErr = e.sink.Close()
	})
	return e.closeErr
}

func (e *Emitter) run() {
	defer close(e.done)
	for {
		select {
		case sample := <-e.queue:
			e.write(sample)
		case <-e.closing:
			for {
				select {
				case sample := <-e.queue:
					e.write(sample)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) write(sample congestion_periodic.Sample) {
	err := e.sink.Write(sample)
	if err != nil {
		e.droppedSink.Add(1)
		SamplesDropped.WithLabelValues(dropReasonSink).Inc()
		if e.logger != nil {
			e.logger.Debug("telemetry: drop sample: ", err)
		}
		return
	}
	e.sent.Add(1)
	SamplesSent.Inc()
}
