package congestion_periodic

// StartupState lets the sinusoid settle before the controller reacts to
// the analyzer. STARTUP is the initial mode and is never re-entered.
type StartupState struct{}

// OnModulationTick holds the base window.
func (s *StartupState) OnModulationTick(baseWindow float64, analyzer *ResponseAnalyzer, params *Params) float64 {
	return baseWindow
}

// OnControlTick leaves STARTUP once the startup duration has elapsed.
// Real control ticks fire slightly after each second boundary, so a
// strict comparison exits on the same tick as this one. Stepped time
// lands exactly on the boundary and needs >= to match.
func (s *StartupState) OnControlTick(input controlInput, params *Params) (Mode, bool) {
	if input.Elapsed >= params.StartupDuration {
		return ModeIncrease, true
	}
	return ModeStartup, false
}
