package telemetry

import (
	"encoding/json"

	events "github.com/docker/go-events"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	E "github.com/sagernet/sing/common/exceptions"
)

// ErrUnsupportedEvent is returned by sinks for events that are not samples.
var ErrUnsupportedEvent = E.New("unsupported telemetry event")

// EncodeSample returns the wire form of a sample event.
func EncodeSample(event events.Event) ([]byte, error) {
	switch sample := event.(type) {
	case congestion_periodic.Sample:
		return json.Marshal(sample)
	case *congestion_periodic.Sample:
		return json.Marshal(sample)
	default:
		return nil, ErrUnsupportedEvent
	}
}

// DecodeSample parses the wire form written by EncodeSample.
func DecodeSample(content []byte) (congestion_periodic.Sample, error) {
	var sample congestion_periodic.Sample
	err := json.Unmarshal(content, &sample)
	return sample, err
}

// namedSink counts failed writes of the wrapped sink.
type namedSink struct {
	events.Sink
	name string
}

// Named labels sink errors with name in telemetry_sink_errors_total.
func Named(name string, sink events.Sink) events.Sink {
	return &namedSink{Sink: sink, name: name}
}

func (s *namedSink) Write(event events.Event) error {
	err := s.Sink.Write(event)
	if err != nil {
		SinkErrors.WithLabelValues(s.name).Inc()
		return E.Cause(err, s.name)
	}
	return nil
}

// Fanout returns a sink writing every event to all sinks. A single sink is
// returned as is.
func Fanout(sinks ...events.Sink) events.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return events.NewBroadcaster(sinks...)
}
