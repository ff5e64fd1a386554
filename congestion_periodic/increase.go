package congestion_periodic

// IncreaseState probes upward with a slow additive ramp until the path
// stops reflecting the offered window in its acknowledgements.
type IncreaseState struct{}

// OnModulationTick grows the base window by one step.
func (s *IncreaseState) OnModulationTick(baseWindow float64, analyzer *ResponseAnalyzer, params *Params) float64 {
	return baseWindow + float64(params.IncreaseStep)
}

// OnControlTick switches to MITIGATION when the ratio falls below the
// threshold.
func (s *IncreaseState) OnControlTick(input controlInput, params *Params) (Mode, bool) {
	if input.below(params.Threshold) {
		return ModeMitigation, true
	}
	return ModeIncrease, false
}
