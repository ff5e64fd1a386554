package congestion_periodic

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recordSamples(t *testing.T, analyzer *ResponseAnalyzer, count int, rtt func(i int) time.Duration) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, analyzer.RecordSample(Sample{
			Elapsed:    time.Duration(i) * 200 * time.Millisecond,
			Window:     1000,
			AckedBytes: 1000,
			LatestRTT:  rtt(i),
		}))
	}
}

func constantRTT(rtt time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return rtt }
}

func TestAnalyzerUndefinedUntilOnePeriod(t *testing.T) {
	analyzer := NewResponseAnalyzer(DefaultParams())
	require.Equal(t, 5, analyzer.WindowSize())

	recordSamples(t, analyzer, 4, constantRTT(50*time.Millisecond))
	_, loaded := analyzer.BDPEstimate()
	require.False(t, loaded)
	_, loaded = analyzer.WindowToResponseRatio()
	require.False(t, loaded)
	_, loaded = analyzer.Throughput()
	require.False(t, loaded)
	_, loaded = analyzer.HarmonicRatio()
	require.False(t, loaded)

	require.NoError(t, analyzer.RecordSample(Sample{
		Elapsed:    800 * time.Millisecond,
		Window:     1000,
		AckedBytes: 1000,
		LatestRTT:  50 * time.Millisecond,
	}))
	bdp, loaded := analyzer.BDPEstimate()
	require.True(t, loaded)
	require.EqualValues(t, 500, bdp)
	_, loaded = analyzer.HarmonicRatio()
	require.True(t, loaded)
}

func TestAnalyzerSteadyFlow(t *testing.T) {
	// 1000 bytes every 100ms is 2000 bytes per 200ms sampling interval,
	// normalized to 1000 bytes per sample.
	analyzer := NewResponseAnalyzer(DefaultParams())
	recordSamples(t, analyzer, 10, constantRTT(50*time.Millisecond))

	throughput, loaded := analyzer.Throughput()
	require.True(t, loaded)
	require.InDelta(t, 10000, throughput, 1e-6)

	bdp, loaded := analyzer.BDPEstimate()
	require.True(t, loaded)
	require.EqualValues(t, 500, bdp)

	ratio, loaded := analyzer.WindowToResponseRatio()
	require.True(t, loaded)
	require.InDelta(t, 0.5, ratio, 1e-9)
}

func TestAnalyzerZeroWindow(t *testing.T) {
	analyzer := NewResponseAnalyzer(DefaultParams())
	for i := 0; i < 5; i++ {
		require.NoError(t, analyzer.RecordSample(Sample{Elapsed: time.Duration(i) * 200 * time.Millisecond}))
	}
	_, loaded := analyzer.WindowToResponseRatio()
	require.False(t, loaded)
	bdp, loaded := analyzer.BDPEstimate()
	require.True(t, loaded)
	require.Zero(t, bdp)
}

func TestAnalyzerRejectsOutOfOrder(t *testing.T) {
	analyzer := NewResponseAnalyzer(DefaultParams())
	require.NoError(t, analyzer.RecordSample(sampleAt(time.Second)))
	require.Error(t, analyzer.RecordSample(sampleAt(time.Second)))
	require.Error(t, analyzer.RecordSample(sampleAt(500*time.Millisecond)))
	require.Equal(t, 1, analyzer.Len())
}

func TestAnalyzerHistoryBounded(t *testing.T) {
	analyzer := NewResponseAnalyzer(DefaultParams())
	recordSamples(t, analyzer, 100, constantRTT(50*time.Millisecond))
	require.Equal(t, 25, analyzer.Len())
	samples := analyzer.Samples()
	require.Equal(t, 99*200*time.Millisecond, samples[len(samples)-1].Elapsed)
}

func TestAdaptedFrequency(t *testing.T) {
	params := DefaultParams()

	analyzer := NewResponseAnalyzer(params)
	require.Equal(t, params.Frequency, analyzer.AdaptedFrequency())

	recordSamples(t, analyzer, 10, constantRTT(50*time.Millisecond))
	require.InDelta(t, 1.0, analyzer.AdaptedFrequency(), 1e-6)

	// A period must span at least four mean RTTs.
	analyzer = NewResponseAnalyzer(params)
	recordSamples(t, analyzer, 10, constantRTT(500*time.Millisecond))
	require.InDelta(t, 0.5, analyzer.AdaptedFrequency(), 1e-6)

	analyzer = NewResponseAnalyzer(params)
	recordSamples(t, analyzer, 10, constantRTT(5*time.Second))
	require.InDelta(t, 0.25, analyzer.AdaptedFrequency(), 1e-6)

	// Jitter slows the modulation down.
	analyzer = NewResponseAnalyzer(params)
	recordSamples(t, analyzer, 10, func(i int) time.Duration {
		if i%2 == 0 {
			return 10 * time.Millisecond
		}
		return 50 * time.Millisecond
	})
	frequency := analyzer.AdaptedFrequency()
	require.Less(t, frequency, 1.0)
	require.GreaterOrEqual(t, frequency, 0.25)
}

func TestHarmonicRatio(t *testing.T) {
	_, ok := harmonicRatio([]float64{1}, 0.2, 1)
	require.False(t, ok)

	ratio, ok := harmonicRatio([]float64{5, 5, 5, 5, 5, 5}, 0.2, 1)
	require.True(t, ok)
	require.Zero(t, ratio)

	series := make([]float64, 25)
	for i := range series {
		series[i] = 1000 + 500*math.Sin(2*math.Pi*float64(i)*0.2)
	}
	ratio, ok = harmonicRatio(series, 0.2, 1)
	require.True(t, ok)
	require.Less(t, ratio, 0.25)

	for i := range series {
		series[i] = 1000 + 500*math.Sin(2*math.Pi*float64(i)*0.4)
	}
	ratio, ok = harmonicRatio(series, 0.2, 1)
	require.True(t, ok)
	require.Greater(t, ratio, 1.0)
}
