package congestion_periodic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModeString(t *testing.T) {
	require.Equal(t, "STARTUP", ModeStartup.String())
	require.Equal(t, "INCREASE", ModeIncrease.String())
	require.Equal(t, "MITIGATION", ModeMitigation.String())
	require.Equal(t, "STABLE", ModeStable.String())
	require.Equal(t, "UNKNOWN", Mode(42).String())
}

func TestStateTransitions(t *testing.T) {
	params := DefaultParams()
	defined := func(ratio float64) controlInput {
		return controlInput{Elapsed: time.Minute, Ratio: ratio, RatioOK: true}
	}
	undefined := controlInput{Elapsed: time.Minute}

	testCases := []struct {
		name    string
		state   stateHandler
		input   controlInput
		next    Mode
		changed bool
	}{
		{"startup before duration", &StartupState{}, controlInput{Elapsed: 9 * time.Second}, ModeStartup, false},
		{"startup at duration", &StartupState{}, controlInput{Elapsed: 10 * time.Second}, ModeIncrease, true},
		{"startup ignores ratio", &StartupState{}, controlInput{Elapsed: time.Second, Ratio: 0.1, RatioOK: true}, ModeStartup, false},
		{"increase below threshold", &IncreaseState{}, defined(0.5), ModeMitigation, true},
		{"increase at threshold", &IncreaseState{}, defined(0.875), ModeIncrease, false},
		{"increase undefined", &IncreaseState{}, undefined, ModeIncrease, false},
		{"mitigation recovered", &MitigationState{}, defined(0.875), ModeStable, true},
		{"mitigation still below", &MitigationState{}, defined(0.8), ModeMitigation, false},
		{"mitigation undefined", &MitigationState{}, undefined, ModeMitigation, false},
		{"stable degraded", &StableState{}, defined(0.5), ModeMitigation, true},
		{"stable holds", &StableState{}, defined(1.2), ModeStable, false},
		{"stable undefined", &StableState{}, undefined, ModeStable, false},
	}
	for _, testCase := range testCases {
		next, changed := testCase.state.OnControlTick(testCase.input, params)
		require.Equal(t, testCase.next, next, testCase.name)
		require.Equal(t, testCase.changed, changed, testCase.name)
	}
}

func TestStateModulation(t *testing.T) {
	params := DefaultParams()
	analyzer := NewResponseAnalyzer(params)

	require.Equal(t, 40000.0, (&StartupState{}).OnModulationTick(40000, analyzer, params))
	require.Equal(t, 40000.0, (&StableState{}).OnModulationTick(40000, analyzer, params))
	require.Equal(t, 40500.0, (&IncreaseState{}).OnModulationTick(40000, analyzer, params))
	// No BDP estimate yet.
	require.Equal(t, 40000.0, (&MitigationState{}).OnModulationTick(40000, analyzer, params))

	for i := 0; i < 5; i++ {
		require.NoError(t, analyzer.RecordSample(Sample{
			Elapsed:    time.Duration(i) * 200 * time.Millisecond,
			Window:     1000,
			AckedBytes: 1000,
			LatestRTT:  50 * time.Millisecond,
		}))
	}
	require.InDelta(t, 475.0, (&MitigationState{}).OnModulationTick(40000, analyzer, params), 1e-9)
}
