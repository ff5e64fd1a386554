package congestion_periodic

// MitigationState anchors the base window to the observed bandwidth-delay
// product until the response recovers.
type MitigationState struct{}

// OnModulationTick moves the base window to a damped BDP estimate. Without
// an estimate the base window is held.
func (s *MitigationState) OnModulationTick(baseWindow float64, analyzer *ResponseAnalyzer, params *Params) float64 {
	bdp, ok := analyzer.BDPEstimate()
	if !ok {
		return baseWindow
	}
	return float64(bdp) * params.BDPDamping
}

// OnControlTick switches to STABLE once the ratio is back at or above the
// threshold.
func (s *MitigationState) OnControlTick(input controlInput, params *Params) (Mode, bool) {
	if input.atOrAbove(params.Threshold) {
		return ModeStable, true
	}
	return ModeMitigation, false
}
