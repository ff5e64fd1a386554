package congestion_periodic

import (
	"math"
	"sync"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
)

// ResponseAnalyzer keeps a bounded history of samples and derives the
// metrics the controller steers by. It knows nothing about the transport.
//
// The trailing window used by every metric is one modulation period of
// samples. All metrics are undefined until that window is full.
type ResponseAnalyzer struct {
	access  sync.RWMutex
	params  *Params
	history *History
	window  int

	harmonicRatios []float64
}

// NewResponseAnalyzer creates an analyzer for already validated params.
func NewResponseAnalyzer(params *Params) *ResponseAnalyzer {
	return &ResponseAnalyzer{
		params:  params,
		history: NewHistory(params.HistoryCapacity()),
		window:  params.SamplesPerPeriod(),
	}
}

// RecordSample appends a sample to the history. Samples must arrive in
// strictly increasing elapsed-time order.
func (a *ResponseAnalyzer) RecordSample(sample Sample) error {
	a.access.Lock()
	defer a.access.Unlock()
	if last, loaded := a.history.Last(); loaded && sample.Elapsed <= last.Elapsed {
		return E.New("sample at ", sample.Elapsed, " does not follow ", last.Elapsed)
	}
	a.history.Push(sample)
	if a.history.Len() >= a.window {
		a.updateHarmonicRatio()
	}
	return nil
}

// Len returns the number of samples in the history.
func (a *ResponseAnalyzer) Len() int {
	a.access.RLock()
	defer a.access.RUnlock()
	return a.history.Len()
}

// WindowSize returns the number of samples in the trailing window.
func (a *ResponseAnalyzer) WindowSize() int {
	return a.window
}

// Samples returns a copy of the history, oldest first.
func (a *ResponseAnalyzer) Samples() []Sample {
	a.access.RLock()
	defer a.access.RUnlock()
	return a.history.Samples()
}

// WindowToResponseRatio returns the fraction of the offered window that is
// reflected in acknowledged throughput over the trailing window.
func (a *ResponseAnalyzer) WindowToResponseRatio() (float64, bool) {
	a.access.RLock()
	defer a.access.RUnlock()
	trailing, loaded := a.trailingLocked()
	if !loaded || trailing.meanWindow <= 0 {
		return 0, false
	}
	ratio := trailing.throughput * trailing.latest.LatestRTT.Seconds() / trailing.meanWindow
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, false
	}
	return ratio, true
}

// BDPEstimate returns observed throughput times the latest RTT.
func (a *ResponseAnalyzer) BDPEstimate() (congestion.ByteCount, bool) {
	a.access.RLock()
	defer a.access.RUnlock()
	trailing, loaded := a.trailingLocked()
	if !loaded {
		return 0, false
	}
	bdp := trailing.throughput * trailing.latest.LatestRTT.Seconds()
	if math.IsNaN(bdp) || math.IsInf(bdp, 0) || bdp < 0 {
		return 0, false
	}
	return congestion.ByteCount(math.Round(bdp)), true
}

// Throughput returns the acknowledged bytes per second over the trailing
// window.
func (a *ResponseAnalyzer) Throughput() (float64, bool) {
	a.access.RLock()
	defer a.access.RUnlock()
	trailing, loaded := a.trailingLocked()
	if !loaded {
		return 0, false
	}
	return trailing.throughput, true
}

// AdaptedFrequency returns a modulation frequency suited to the observed
// RTT. Unstable RTTs slow the modulation down, and one modulation period
// never spans fewer than MinPeriodRTTs mean RTTs. The result stays within
// [MinFrequencyFraction*Frequency, Frequency].
func (a *ResponseAnalyzer) AdaptedFrequency() float64 {
	a.access.RLock()
	defer a.access.RUnlock()
	base := a.params.Frequency
	var (
		count int
		sum   float64
		sumSq float64
	)
	for i := 0; i < a.history.Len(); i++ {
		rtt := a.history.At(i).LatestRTT.Seconds()
		if rtt <= 0 {
			continue
		}
		count++
		sum += rtt
		sumSq += rtt * rtt
	}
	if count == 0 {
		return base
	}
	mean := sum / float64(count)
	variance := math.Max(sumSq/float64(count)-mean*mean, 0)
	cv := math.Sqrt(variance) / mean
	frequency := base / (1 + cv)
	if a.params.MinPeriodRTTs > 0 {
		frequency = math.Min(frequency, 1/(a.params.MinPeriodRTTs*mean))
	}
	frequency = floorAt(frequency, base*a.params.MinFrequencyFraction)
	return math.Min(finiteOr(frequency, base), base)
}

// HarmonicRatio returns the average ratio of the second harmonic to the
// fundamental in the acknowledged-bytes spectrum.
func (a *ResponseAnalyzer) HarmonicRatio() (float64, bool) {
	a.access.RLock()
	defer a.access.RUnlock()
	if len(a.harmonicRatios) == 0 {
		return 0, false
	}
	var sum float64
	for _, ratio := range a.harmonicRatios {
		sum += ratio
	}
	return sum / float64(len(a.harmonicRatios)), true
}

type trailingWindow struct {
	throughput float64
	meanWindow float64
	latest     Sample
}

func (a *ResponseAnalyzer) trailingLocked() (trailingWindow, bool) {
	size := a.history.Len()
	if size < a.window {
		return trailingWindow{}, false
	}
	first := a.history.At(size - a.window)
	latest := a.history.At(size - 1)
	var acked, window float64
	for i := size - a.window; i < size; i++ {
		sample := a.history.At(i)
		acked += sample.AckedBytes
		window += float64(sample.Window)
	}
	span := (latest.Elapsed - first.Elapsed + a.params.SamplingInterval).Seconds()
	if span <= 0 {
		return trailingWindow{}, false
	}
	return trailingWindow{
		throughput: acked / a.params.ackScale() / span,
		meanWindow: window / float64(a.window),
		latest:     latest,
	}, true
}

func (a *ResponseAnalyzer) updateHarmonicRatio() {
	series := make([]float64, a.history.Len())
	for i := range series {
		series[i] = a.history.At(i).AckedBytes
	}
	ratio, ok := harmonicRatio(series, a.params.SamplingInterval.Seconds(), a.params.Frequency)
	if !ok {
		return
	}
	a.harmonicRatios = append(a.harmonicRatios, ratio)
	if len(a.harmonicRatios) > a.history.Cap() {
		a.harmonicRatios = a.harmonicRatios[1:]
	}
}
