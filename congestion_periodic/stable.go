package congestion_periodic

// StableState holds the base window until the response degrades again.
type StableState struct{}

func (s *StableState) OnModulationTick(baseWindow float64, analyzer *ResponseAnalyzer, params *Params) float64 {
	return baseWindow
}

func (s *StableState) OnControlTick(input controlInput, params *Params) (Mode, bool) {
	if input.below(params.Threshold) {
		return ModeMitigation, true
	}
	return ModeStable, false
}
