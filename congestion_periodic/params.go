// Periodic congestion control parameters.

package congestion_periodic

import (
	"math"
	"strconv"
	"time"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
)

const (
	// DefaultMaxDatagramSize is the datagram size assumed before the
	// transport reports one.
	DefaultMaxDatagramSize congestion.ByteCount = 1252

	// Minimum congestion window in datagrams.
	minCongestionWindowPackets = 2

	// Number of modulation ticks per sampling interval.
	modulationTicksPerSample = 10
)

// Params contains the tunable parameters of the periodic controller.
// All values are fixed once a controller has been constructed.
type Params struct {
	// Window shape
	MaxDatagramSize congestion.ByteCount
	BaseWindow      congestion.ByteCount
	// Amplitude is the initial oscillation amplitude. Its ratio to BaseWindow
	// is kept while the base window moves.
	Amplitude     congestion.ByteCount
	MinimumWindow congestion.ByteCount
	// Frequency of the sinusoid in Hz.
	Frequency float64

	// Schedules
	SamplingInterval time.Duration
	// Acked bytes are normalized to this interval before being sampled.
	ReferenceInterval time.Duration
	ControlInterval   time.Duration
	StartupDuration   time.Duration

	// State machine
	Threshold    float64
	IncreaseStep congestion.ByteCount
	BDPDamping   float64

	// Latest RTT reported before the first measurement.
	InitialRTT time.Duration

	// Analyzer
	HistoryPeriods       int
	AdaptFrequency       bool
	MinPeriodRTTs        float64
	MinFrequencyFraction float64
}

// DefaultParams returns the parameters the controller was tuned with.
func DefaultParams() *Params {
	return &Params{
		MaxDatagramSize: DefaultMaxDatagramSize,
		BaseWindow:      40000,
		Amplitude:       10000, // 25% of the base window
		MinimumWindow:   minCongestionWindowPackets * DefaultMaxDatagramSize,
		Frequency:       1,

		SamplingInterval:  200 * time.Millisecond,
		ReferenceInterval: 100 * time.Millisecond,
		ControlInterval:   time.Second,
		StartupDuration:   10 * time.Second,

		Threshold:    0.875,
		IncreaseStep: 500,
		BDPDamping:   0.95,

		InitialRTT: 500 * time.Millisecond,

		HistoryPeriods:       5,
		AdaptFrequency:       false,
		MinPeriodRTTs:        4,
		MinFrequencyFraction: 0.25,
	}
}

// Validate rejects parameters that would make the control loop undefined.
func (p *Params) Validate() error {
	switch {
	case p.MaxDatagramSize <= 0:
		return E.New("invalid max datagram size: ", int64(p.MaxDatagramSize))
	case p.BaseWindow <= 0:
		return E.New("invalid base window: ", int64(p.BaseWindow))
	case p.Amplitude <= 0:
		return E.New("invalid amplitude: ", int64(p.Amplitude))
	case p.MinimumWindow < p.MaxDatagramSize:
		return E.New("minimum window ", int64(p.MinimumWindow), " is smaller than one datagram")
	case !(p.Frequency > 0) || math.IsInf(p.Frequency, 0):
		return E.New("invalid modulation frequency: ", formatFloat(p.Frequency))
	case p.SamplingInterval < modulationTicksPerSample:
		return E.New("invalid sampling interval: ", p.SamplingInterval)
	case p.ReferenceInterval <= 0:
		return E.New("invalid reference interval: ", p.ReferenceInterval)
	case p.ControlInterval <= 0:
		return E.New("invalid control interval: ", p.ControlInterval)
	case p.StartupDuration < 0:
		return E.New("invalid startup duration: ", p.StartupDuration)
	case !(p.Threshold > 0):
		return E.New("invalid threshold: ", formatFloat(p.Threshold))
	case p.IncreaseStep < 0:
		return E.New("invalid increase step: ", int64(p.IncreaseStep))
	case !(p.BDPDamping > 0 && p.BDPDamping <= 1):
		return E.New("invalid BDP damping factor: ", formatFloat(p.BDPDamping))
	case p.InitialRTT < 0:
		return E.New("invalid initial RTT: ", p.InitialRTT)
	case p.HistoryPeriods < 1:
		return E.New("invalid history length: ", p.HistoryPeriods)
	case p.AdaptFrequency && !(p.MinFrequencyFraction > 0 && p.MinFrequencyFraction <= 1):
		return E.New("invalid minimum frequency fraction: ", formatFloat(p.MinFrequencyFraction))
	}
	return nil
}

// ModulationInterval is the period of the window modulation procedure.
func (p *Params) ModulationInterval() time.Duration {
	return p.SamplingInterval / modulationTicksPerSample
}

// SamplesPerPeriod is the number of samples covering one modulation period.
func (p *Params) SamplesPerPeriod() int {
	perPeriod := 1 / (p.Frequency * p.SamplingInterval.Seconds())
	// Absorb float noise so that 1/(1Hz*0.2s) is 5 and not 6.
	n := int(math.Ceil(perPeriod - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// HistoryCapacity is the number of samples kept by the analyzer.
func (p *Params) HistoryCapacity() int {
	return p.HistoryPeriods * p.SamplesPerPeriod()
}

// ackScale normalizes acked bytes of one sampling interval to the
// reference interval.
func (p *Params) ackScale() float64 {
	return p.ReferenceInterval.Seconds() / p.SamplingInterval.Seconds()
}

func (p *Params) amplitudeFraction() float64 {
	return float64(p.Amplitude) / float64(p.BaseWindow)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
