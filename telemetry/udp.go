package telemetry

import (
	"context"
	"net"

	events "github.com/docker/go-events"
	E "github.com/sagernet/sing/common/exceptions"
)

var _ events.Sink = (*UDPSink)(nil)

// UDPSink sends one datagram per sample. Delivery is not confirmed.
type UDPSink struct {
	conn net.Conn
}

func NewUDPSink(ctx context.Context, address string) (*UDPSink, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, E.Cause(err, "dial telemetry collector ", address)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Write(event events.Event) error {
	content, err := EncodeSample(event)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(content)
	return err
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}
