// Operating modes of the periodic controller.

package congestion_periodic

import "time"

// Mode represents the operating state of the controller.
type Mode int32

const (
	ModeStartup Mode = iota
	ModeIncrease
	ModeMitigation
	ModeStable
)

func (m Mode) String() string {
	switch m {
	case ModeStartup:
		return "STARTUP"
	case ModeIncrease:
		return "INCREASE"
	case ModeMitigation:
		return "MITIGATION"
	case ModeStable:
		return "STABLE"
	default:
		return "UNKNOWN"
	}
}

// controlInput is what a state sees on a state-machine tick.
type controlInput struct {
	// Time since the controller started.
	Elapsed time.Duration
	// Window-to-response ratio, valid only if RatioOK.
	Ratio   float64
	RatioOK bool
}

// stateHandler holds the per-mode behavior of the two procedures that
// depend on the mode.
type stateHandler interface {
	// OnModulationTick returns the base window for this tick.
	OnModulationTick(baseWindow float64, analyzer *ResponseAnalyzer, params *Params) float64
	// OnControlTick returns the next mode and whether the mode changed.
	OnControlTick(input controlInput, params *Params) (nextMode Mode, modeChanged bool)
}

// below reports whether a defined ratio is under the threshold. An
// undefined ratio is neither below nor above it.
func (in controlInput) below(threshold float64) bool {
	return in.RatioOK && in.Ratio < threshold
}

func (in controlInput) atOrAbove(threshold float64) bool {
	return in.RatioOK && in.Ratio >= threshold
}
