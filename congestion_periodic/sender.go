package congestion_periodic

import (
	"context"
	"time"

	"github.com/sagernet/quic-go/congestion"
)

var _ congestion.CongestionControl = (*PeriodicSender)(nil)

// PeriodicSender drives a PeriodicController from quic-go's congestion
// control hooks and paces packets at 1.25 windows per RTT.
type PeriodicSender struct {
	controller      *PeriodicController
	clock           Clock
	rttStats        congestion.RTTStatsProvider
	pacer           *pacer
	maxDatagramSize congestion.ByteCount
}

// NewPeriodicSender creates a sender and starts its controller. The
// controller stops when ctx is done or the sender is closed.
func NewPeriodicSender(ctx context.Context, options Options) (*PeriodicSender, error) {
	controller, err := NewPeriodicController(options)
	if err != nil {
		return nil, err
	}
	controller.Start(ctx)
	return newPeriodicSender(controller), nil
}

func newPeriodicSender(controller *PeriodicController) *PeriodicSender {
	s := &PeriodicSender{
		controller:      controller,
		clock:           controller.clock,
		maxDatagramSize: controller.params.MaxDatagramSize,
	}
	s.pacer = newPacer(s.maxDatagramSize, s.bandwidthEstimate)
	return s
}

// SetCongestionControl installs a periodic sender on a connection.
func SetCongestionControl(ctx context.Context, connection interface {
	SetCongestionControl(congestion.CongestionControl)
}, options Options,
) (*PeriodicSender, error) {
	sender, err := NewPeriodicSender(ctx, options)
	if err != nil {
		return nil, err
	}
	connection.SetCongestionControl(sender)
	return sender, nil
}

func (s *PeriodicSender) Controller() *PeriodicController {
	return s.controller
}

func (s *PeriodicSender) Close() error {
	return s.controller.Close()
}

func (s *PeriodicSender) SetRTTStatsProvider(provider congestion.RTTStatsProvider) {
	s.rttStats = provider
}

func (s *PeriodicSender) TimeUntilSend(bytesInFlight congestion.ByteCount) time.Time {
	return s.pacer.TimeUntilSend()
}

func (s *PeriodicSender) HasPacingBudget(now time.Time) bool {
	return s.pacer.Budget(now) >= s.maxDatagramSize
}

func (s *PeriodicSender) OnPacketSent(sentTime time.Time, bytesInFlight congestion.ByteCount, packetNumber congestion.PacketNumber, bytes congestion.ByteCount, isRetransmittable bool) {
	s.pacer.SentPacket(sentTime, bytes)
	if !isRetransmittable {
		return
	}
	s.controller.OnPacketSent(PacketRecord{SentBytes: bytes, SentTime: sentTime})
}

func (s *PeriodicSender) CanSend(bytesInFlight congestion.ByteCount) bool {
	return bytesInFlight < s.GetCongestionWindow()
}

func (s *PeriodicSender) MaybeExitSlowStart() {
}

func (s *PeriodicSender) OnPacketAcked(number congestion.PacketNumber, ackedBytes congestion.ByteCount, priorInFlight congestion.ByteCount, eventTime time.Time) {
	if s.rttStats != nil {
		if rtt := s.rttStats.LatestRTT(); rtt > 0 {
			s.controller.OnRTTMeasurement(eventTime, rtt)
		}
	}
	s.controller.OnPacketAcked(eventTime, PacketRecord{SentBytes: ackedBytes})
}

func (s *PeriodicSender) OnPacketLost(number congestion.PacketNumber, lostBytes congestion.ByteCount, priorInFlight congestion.ByteCount) {
	s.controller.OnPacketsLost(s.clock.Now(), []PacketRecord{{SentBytes: lostBytes}})
}

func (s *PeriodicSender) OnRetransmissionTimeout(packetsRetransmitted bool) {
}

func (s *PeriodicSender) SetMaxDatagramSize(size congestion.ByteCount) {
	s.maxDatagramSize = size
	s.pacer.SetMaxDatagramSize(size)
}

// InSlowStart reports whether the controller is still in STARTUP.
func (s *PeriodicSender) InSlowStart() bool {
	return s.controller.Mode() == ModeStartup
}

// InRecovery reports whether the controller is in MITIGATION.
func (s *PeriodicSender) InRecovery() bool {
	return s.controller.Mode() == ModeMitigation
}

func (s *PeriodicSender) GetCongestionWindow() congestion.ByteCount {
	return s.controller.CurrentWindow()
}

func (s *PeriodicSender) bandwidthEstimate() congestion.ByteCount {
	rtt := s.controller.LatestRTT()
	if s.rttStats != nil {
		if smoothed := s.rttStats.SmoothedRTT(); smoothed > 0 {
			rtt = smoothed
		}
	}
	return pacingRate(s.GetCongestionWindow(), rtt)
}
