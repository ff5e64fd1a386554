package congestion_periodic

import "math"

// Zero padding factor applied before the transform. The padded series is
// (1+harmonicPadding) times as long as the input.
const harmonicPadding = 4

// harmonicRatio returns the magnitude of the second harmonic relative to
// the fundamental in a uniformly sampled series. The series is linearly
// detrended and Hann windowed first. A zero fundamental yields a ratio of 0.
func harmonicRatio(series []float64, samplingInterval float64, frequency float64) (float64, bool) {
	n := len(series)
	if n < 2 || !(samplingInterval > 0) || !(frequency > 0) {
		return 0, false
	}
	prepared := detrend(series)
	for i := range prepared {
		prepared[i] *= 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	padded := n * (1 + harmonicPadding)
	base := dftMagnitude(prepared, padded, nearestBin(frequency, padded, samplingInterval))
	if base == 0 {
		return 0, true
	}
	second := dftMagnitude(prepared, padded, nearestBin(2*frequency, padded, samplingInterval))
	return finiteOr(second/base, 0), true
}

// detrend returns series minus its least-squares line.
func detrend(series []float64) []float64 {
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	var slope float64
	if denominator := n*sumXX - sumX*sumX; denominator != 0 {
		slope = (n*sumXY - sumX*sumY) / denominator
	}
	intercept := (sumY - slope*sumX) / n
	residual := make([]float64, len(series))
	for i, y := range series {
		residual[i] = y - (intercept + slope*float64(i))
	}
	return residual
}

// nearestBin returns the one-sided spectrum bin closest to frequency.
func nearestBin(frequency float64, length int, samplingInterval float64) int {
	bin := int(math.Round(frequency * float64(length) * samplingInterval))
	return min(max(bin, 0), length/2)
}

// dftMagnitude evaluates a single bin of the length-point DFT of values
// zero padded to length.
func dftMagnitude(values []float64, length int, bin int) float64 {
	var re, im float64
	for i, v := range values {
		angle := -2 * math.Pi * float64(bin) * float64(i) / float64(length)
		re += v * math.Cos(angle)
		im += v * math.Sin(angle)
	}
	return math.Hypot(re, im)
}
