// Package simulation models a single bottleneck path so that the periodic
// controller can be exercised without a network.
package simulation

import (
	"strconv"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	E "github.com/sagernet/sing/common/exceptions"
)

type PathConfig struct {
	// Bottleneck capacity in bytes per second.
	Capacity float64
	// Propagation delay without queueing.
	BaseRTT time.Duration
	// Bytes the bottleneck buffers before dropping.
	QueueLimit congestion.ByteCount
}

func (c PathConfig) Validate() error {
	switch {
	case !(c.Capacity > 0):
		return E.New("invalid path capacity: ", strconv.FormatFloat(c.Capacity, 'g', -1, 64))
	case c.BaseRTT < 0:
		return E.New("invalid base RTT: ", c.BaseRTT)
	case c.QueueLimit < 0:
		return E.New("invalid queue limit: ", int64(c.QueueLimit))
	}
	return nil
}

// Delivery is the outcome of a sent packet as seen by the sender.
type Delivery struct {
	Record PacketRecord
	// When the sender learns the outcome.
	At   time.Time
	Lost bool
}

// PacketRecord is re-exported for callers that only use this package.
type PacketRecord = congestion_periodic.PacketRecord

// RTT is the time between sending the packet and learning its outcome.
func (d Delivery) RTT() time.Duration {
	return d.At.Sub(d.Record.SentTime)
}

// Path is a FIFO bottleneck followed by a fixed delay. Acknowledgements
// and losses each come back in send order, so two queues suffice.
type Path struct {
	config   PathConfig
	linkFree time.Time
	acks     []Delivery
	losses   []Delivery

	outstanding congestion.ByteCount
}

func NewPath(config PathConfig) (*Path, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	return &Path{config: config}, nil
}

// QueuedBytes returns the bytes waiting at the bottleneck at now.
func (p *Path) QueuedBytes(now time.Time) congestion.ByteCount {
	backlog := p.linkFree.Sub(now)
	if backlog <= 0 {
		return 0
	}
	return congestion.ByteCount(backlog.Seconds() * p.config.Capacity)
}

// Outstanding returns the bytes sent whose outcome has not been polled.
func (p *Path) Outstanding() congestion.ByteCount {
	return p.outstanding
}

// Send offers a packet to the bottleneck and reports whether it was
// accepted. A dropped packet is reported lost one base RTT later.
func (p *Path) Send(record PacketRecord) bool {
	now := record.SentTime
	p.outstanding += record.SentBytes
	if p.QueuedBytes(now)+record.SentBytes > p.config.QueueLimit {
		p.losses = append(p.losses, Delivery{Record: record, At: now.Add(p.config.BaseRTT), Lost: true})
		return false
	}
	start := p.linkFree
	if start.Before(now) {
		start = now
	}
	transmission := time.Duration(float64(record.SentBytes) / p.config.Capacity * float64(time.Second))
	p.linkFree = start.Add(transmission)
	p.acks = append(p.acks, Delivery{Record: record, At: p.linkFree.Add(p.config.BaseRTT)})
	return true
}

// Poll returns every outcome known at now, ordered by time.
func (p *Path) Poll(now time.Time) []Delivery {
	var deliveries []Delivery
	for {
		var next *[]Delivery
		if len(p.acks) > 0 && !p.acks[0].At.After(now) {
			next = &p.acks
		}
		if len(p.losses) > 0 && !p.losses[0].At.After(now) &&
			(next == nil || p.losses[0].At.Before(p.acks[0].At)) {
			next = &p.losses
		}
		if next == nil {
			return deliveries
		}
		delivery := (*next)[0]
		*next = (*next)[1:]
		p.outstanding -= delivery.Record.SentBytes
		deliveries = append(deliveries, delivery)
	}
}
