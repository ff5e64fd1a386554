package congestion_periodic

import (
	"time"

	"github.com/sagernet/quic-go/congestion"
)

const (
	maxBurstPackets               = 10
	maxBurstPacingDelayMultiplier = 4
	minPacingDelay                = time.Millisecond

	// Pacing runs ahead of window/RTT so that the window, not the pacer,
	// limits the sender.
	pacingGain = 1.25
)

// pacer is a token bucket that spreads a window over one RTT.
type pacer struct {
	budgetAtLastSent congestion.ByteCount
	maxDatagramSize  congestion.ByteCount
	lastSentTime     time.Time
	getBandwidth     func() congestion.ByteCount // in bytes/s
}

func newPacer(maxDatagramSize congestion.ByteCount, getBandwidth func() congestion.ByteCount) *pacer {
	return &pacer{
		budgetAtLastSent: maxBurstPackets * maxDatagramSize,
		maxDatagramSize:  maxDatagramSize,
		getBandwidth:     getBandwidth,
	}
}

func (p *pacer) SentPacket(sendTime time.Time, size congestion.ByteCount) {
	budget := p.Budget(sendTime)
	if size > budget {
		p.budgetAtLastSent = 0
	} else {
		p.budgetAtLastSent = budget - size
	}
	p.lastSentTime = sendTime
}

func (p *pacer) Budget(now time.Time) congestion.ByteCount {
	if p.lastSentTime.IsZero() {
		return p.maxBurstSize()
	}
	budget := p.budgetAtLastSent + (p.bandwidth()*congestion.ByteCount(now.Sub(p.lastSentTime).Nanoseconds()))/1e9
	if budget < 0 { // overflow
		budget = congestion.ByteCount(1<<62 - 1)
	}
	return min(p.maxBurstSize(), budget)
}

func (p *pacer) maxBurstSize() congestion.ByteCount {
	return max(
		congestion.ByteCount((maxBurstPacingDelayMultiplier*minPacingDelay).Nanoseconds())*p.bandwidth()/1e9,
		maxBurstPackets*p.maxDatagramSize,
	)
}

// TimeUntilSend returns when the next packet may be sent, or the zero
// time if it may be sent immediately.
func (p *pacer) TimeUntilSend() time.Time {
	if p.budgetAtLastSent >= p.maxDatagramSize {
		return time.Time{}
	}
	diff := 1e9 * uint64(p.maxDatagramSize-p.budgetAtLastSent)
	bw := uint64(p.bandwidth())
	// Round up, otherwise the budget may still be short of one datagram
	// when the timer fires.
	d := diff / bw
	if diff%bw > 0 {
		d++
	}
	return p.lastSentTime.Add(max(minPacingDelay, time.Duration(d)))
}

func (p *pacer) SetMaxDatagramSize(size congestion.ByteCount) {
	p.maxDatagramSize = size
}

func (p *pacer) bandwidth() congestion.ByteCount {
	return max(p.getBandwidth(), 1)
}

// pacingRate returns the bandwidth that delivers window bytes per rtt,
// scaled by pacingGain.
func pacingRate(window congestion.ByteCount, rtt time.Duration) congestion.ByteCount {
	if rtt <= 0 {
		rtt = minPacingDelay
	}
	return congestion.ByteCount(pacingGain * float64(window) / rtt.Seconds())
}
