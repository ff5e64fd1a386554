package congestion_periodic

import "time"

// Stepper drives the periodic procedures of a controller on simulated
// time instead of tickers. Procedures run at the same offsets from the
// controller's start time as they would under Start: all three at zero,
// then every ModulationInterval, SamplingInterval and ControlInterval.
// Procedures due at the same instant run in the order modulation,
// sampling, state machine.
//
// A controller driven by a Stepper must not also be started.
type Stepper struct {
	controller     *PeriodicController
	elapsed        time.Duration
	nextModulation time.Duration
	nextSample     time.Duration
	nextControl    time.Duration
}

func NewStepper(controller *PeriodicController) *Stepper {
	return &Stepper{controller: controller}
}

// Elapsed returns the simulated time since the controller's start.
func (s *Stepper) Elapsed() time.Duration {
	return s.elapsed
}

// Now returns the simulated wall time.
func (s *Stepper) Now() time.Time {
	return s.controller.startTime.Add(s.elapsed)
}

// Advance moves simulated time forward by d.
func (s *Stepper) Advance(d time.Duration) {
	s.AdvanceTo(s.elapsed + d)
}

// AdvanceTo runs every procedure due at or before elapsed.
func (s *Stepper) AdvanceTo(elapsed time.Duration) {
	params := s.controller.params
	for {
		next := min(s.nextModulation, s.nextSample, s.nextControl)
		if next > elapsed {
			break
		}
		now := s.controller.startTime.Add(next)
		switch next {
		case s.nextModulation:
			s.controller.modulate(now)
			s.nextModulation += params.ModulationInterval()
		case s.nextSample:
			s.controller.sample(now)
			s.nextSample += params.SamplingInterval
		default:
			s.controller.control(now)
			s.nextControl += params.ControlInterval
		}
	}
	if elapsed > s.elapsed {
		s.elapsed = elapsed
	}
}
