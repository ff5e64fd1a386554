package congestion_periodic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sagernet/quic-go/congestion"
	F "github.com/sagernet/sing/common/format"
	"github.com/sagernet/sing/common/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testStartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return DefaultClock{TimeFunc: func() time.Time { return testStartTime }}
}

type recordingEmitter struct {
	access  sync.Mutex
	samples []Sample
}

func (e *recordingEmitter) Emit(sample Sample) {
	e.access.Lock()
	defer e.access.Unlock()
	e.samples = append(e.samples, sample)
}

var _ logger.Logger = (*recordingLogger)(nil)

// recordingLogger formats messages with F.ToString, as sing loggers do.
type recordingLogger struct {
	access   sync.Mutex
	messages []string
}

func (l *recordingLogger) record(args ...any) {
	message := F.ToString(args...)
	l.access.Lock()
	defer l.access.Unlock()
	l.messages = append(l.messages, message)
}

func (l *recordingLogger) Trace(args ...any) { l.record(args...) }
func (l *recordingLogger) Debug(args ...any) { l.record(args...) }
func (l *recordingLogger) Info(args ...any)  { l.record(args...) }
func (l *recordingLogger) Warn(args ...any)  { l.record(args...) }
func (l *recordingLogger) Error(args ...any) { l.record(args...) }
func (l *recordingLogger) Fatal(args ...any) { l.record(args...) }
func (l *recordingLogger) Panic(args ...any) { l.record(args...) }

func (l *recordingLogger) Messages() []string {
	l.access.Lock()
	defer l.access.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestController(t *testing.T, options Options) (*PeriodicController, *Stepper) {
	t.Helper()
	if options.Clock == nil {
		options.Clock = fixedClock()
	}
	controller, err := NewPeriodicController(options)
	require.NoError(t, err)
	return controller, NewStepper(controller)
}

func TestNewPeriodicControllerRejectsInvalidParams(t *testing.T) {
	for _, mutate := range []func(*Params){
		func(p *Params) { p.Frequency = -1 },
		func(p *Params) { p.Amplitude = 0 },
		func(p *Params) { p.BDPDamping = 0 },
		func(p *Params) { p.SamplingInterval = 0 },
	} {
		params := DefaultParams()
		mutate(params)
		controller, err := NewPeriodicController(Options{Params: params})
		require.ErrorContains(t, err, "create periodic controller: invalid ")
		require.Nil(t, controller)
	}
}

func TestControllerInitialState(t *testing.T) {
	controller, _ := newTestController(t, Options{})
	require.Equal(t, ModeStartup, controller.Mode())
	require.EqualValues(t, 40000, controller.CurrentWindow())
	require.EqualValues(t, 40000, controller.BaseWindow())
	require.Equal(t, 500*time.Millisecond, controller.LatestRTT())
	require.Zero(t, controller.BytesInFlight())
	_, loaded := controller.LastLossTime()
	require.False(t, loaded)
	require.Equal(t, testStartTime, controller.StartTime())
}

func TestControllerStartupScenario(t *testing.T) {
	controller, stepper := newTestController(t, Options{})
	params := controller.Params()
	for elapsed := time.Duration(0); elapsed < params.StartupDuration; elapsed += params.ModulationInterval() {
		stepper.AdvanceTo(elapsed)
		require.Equal(t, ModeStartup, controller.Mode(), elapsed)
		window := controller.CurrentWindow()
		require.GreaterOrEqual(t, window, congestion.ByteCount(30000), elapsed)
		require.LessOrEqual(t, window, congestion.ByteCount(50000), elapsed)
	}
	// The eleventh state machine tick runs at ten seconds.
	stepper.AdvanceTo(params.StartupDuration)
	require.Equal(t, ModeIncrease, controller.Mode())
	require.EqualValues(t, 1, controller.Stats().Transitions)
}

func TestControllerWindowFloor(t *testing.T) {
	controller, stepper := newTestController(t, Options{})
	params := controller.Params()
	leftStartup := false
	for elapsed := time.Duration(0); elapsed <= time.Minute; elapsed += params.ModulationInterval() {
		stepper.AdvanceTo(elapsed)
		require.GreaterOrEqual(t, controller.CurrentWindow(), params.MinimumWindow)
		require.GreaterOrEqual(t, controller.BaseWindow(), params.MinimumWindow)
		if controller.Mode() != ModeStartup {
			leftStartup = true
		} else {
			require.False(t, leftStartup, "STARTUP re-entered")
		}
	}
	// Nothing is acknowledged, so the controller backs off to the floor.
	require.Equal(t, ModeMitigation, controller.Mode())
	require.Equal(t, params.MinimumWindow, controller.BaseWindow())
}

func TestControllerRecoversToStable(t *testing.T) {
	controller, stepper := newTestController(t, Options{})
	stepper.AdvanceTo(11 * time.Second)
	require.Equal(t, ModeMitigation, controller.Mode())

	for elapsed := 11*time.Second + 5*time.Millisecond; elapsed < 14*time.Second; elapsed += 10 * time.Millisecond {
		stepper.AdvanceTo(elapsed)
		now := stepper.Now()
		record := PacketRecord{SentBytes: 1252, SentTime: now}
		controller.OnPacketSent(record)
		controller.OnRTTMeasurement(now, 50*time.Millisecond)
		controller.OnPacketAcked(now, record)
	}
	stepper.AdvanceTo(14 * time.Second)
	require.Equal(t, ModeStable, controller.Mode())
	require.EqualValues(t, 3, controller.Stats().Transitions)
	require.Zero(t, controller.BytesInFlight())
}

func TestControllerBDPScenario(t *testing.T) {
	controller, stepper := newTestController(t, Options{})
	for ack := 50 * time.Millisecond; ack < time.Second; ack += 100 * time.Millisecond {
		stepper.AdvanceTo(ack)
		now := stepper.Now()
		record := PacketRecord{SentBytes: 1000, SentTime: now.Add(-50 * time.Millisecond)}
		controller.OnPacketSent(record)
		controller.OnRTTMeasurement(now, 50*time.Millisecond)
		controller.OnPacketAcked(now, record)
	}
	stepper.AdvanceTo(time.Second)
	bdp, loaded := controller.Analyzer().BDPEstimate()
	require.True(t, loaded)
	require.InDelta(t, 500, float64(bdp), 1)
}

func TestControllerAccounting(t *testing.T) {
	controller, stepper := newTestController(t, Options{})
	now := testStartTime.Add(time.Second)
	records := []PacketRecord{
		{SentBytes: 1000, SentTime: now},
		{SentBytes: 1200, SentTime: now},
		{SentBytes: 800, SentTime: now},
	}
	for _, record := range records {
		controller.OnPacketSent(record)
	}
	require.EqualValues(t, 3000, controller.BytesInFlight())

	controller.OnPacketAcked(now, records[0])
	controller.OnPacketsExpired(records[2:])
	_, loaded := controller.LastLossTime()
	require.False(t, loaded)

	controller.OnPacketsLost(now, records[1:2])
	require.Zero(t, controller.BytesInFlight())
	lossTime, loaded := controller.LastLossTime()
	require.True(t, loaded)
	require.True(t, now.Equal(lossTime))
	require.Zero(t, controller.Stats().Anomalies)

	// A duplicate acknowledgement clamps at zero.
	controller.OnPacketAcked(now, records[0])
	require.Zero(t, controller.BytesInFlight())
	require.EqualValues(t, 1, controller.Stats().Anomalies)

	// Two acks of 1000 bytes, normalized to the reference interval.
	stepper.AdvanceTo(0)
	sample := controller.Analyzer().Samples()[0]
	require.InDelta(t, 1000, sample.AckedBytes, 1e-9)
	stepper.AdvanceTo(200 * time.Millisecond)
	require.Zero(t, controller.Analyzer().Samples()[1].AckedBytes)
}

func TestControllerConcurrentEvents(t *testing.T) {
	controller, _ := newTestController(t, Options{})
	var group sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for i := 0; i < 1000; i++ {
				record := PacketRecord{SentBytes: 1000}
				controller.OnPacketSent(record)
				controller.OnPacketAcked(testStartTime, record)
			}
		}()
	}
	group.Wait()
	require.Zero(t, controller.BytesInFlight())
	require.Zero(t, controller.Stats().Anomalies)
	controller.sample(testStartTime)
	require.InDelta(t, 8*1000*1000*0.5, controller.Analyzer().Samples()[0].AckedBytes, 1e-6)
}

func TestControllerEmitsSamples(t *testing.T) {
	emitter := &recordingEmitter{}
	controller, stepper := newTestController(t, Options{Emitter: emitter})
	stepper.AdvanceTo(time.Second)
	require.EqualValues(t, 6, controller.Stats().Samples)
	require.Len(t, emitter.samples, 6)
	require.Equal(t, time.Second, emitter.samples[5].Elapsed)
}

func TestControllerLossPolicy(t *testing.T) {
	controller, stepper := newTestController(t, Options{LossPolicy: MultiplicativeDecrease(0.5)})
	stepper.AdvanceTo(0)
	require.EqualValues(t, 40000, controller.BaseWindow())

	controller.OnPacketSent(PacketRecord{SentBytes: 1000})
	controller.OnPacketsLost(stepper.Now(), []PacketRecord{{SentBytes: 1000}})
	params := controller.Params()
	stepper.Advance(params.ModulationInterval())
	require.EqualValues(t, 20000, controller.BaseWindow())

	// Loss is consumed once.
	stepper.Advance(params.ModulationInterval())
	require.EqualValues(t, 20000, controller.BaseWindow())
}

func TestControllerAdaptsFrequency(t *testing.T) {
	params := DefaultParams()
	params.AdaptFrequency = true
	controller, stepper := newTestController(t, Options{Params: params})
	// The initial RTT of 500ms limits the frequency to 1/(4*0.5s).
	stepper.AdvanceTo(time.Second)
	require.InDelta(t, 0.5, controller.Frequency(), 1e-6)
}

func TestControllerStartClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	params := DefaultParams()
	params.SamplingInterval = 10 * time.Millisecond
	params.ControlInterval = 20 * time.Millisecond
	emitter := &recordingEmitter{}
	controller, err := NewPeriodicController(Options{Params: params, Emitter: emitter})
	require.NoError(t, err)

	controller.Start(context.Background())
	controller.Start(context.Background())
	require.Eventually(t, func() bool {
		return controller.Stats().Samples >= 3
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, controller.Close())
	require.NoError(t, controller.Close())

	samples := controller.Stats().Samples
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, samples, controller.Stats().Samples)
}

func TestControllerStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	controller, err := NewPeriodicController(Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	controller.Start(ctx)
	cancel()
	require.NoError(t, controller.Close())
}

func TestControllerCloseBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	controller, err := NewPeriodicController(Options{})
	require.NoError(t, err)
	require.NoError(t, controller.Close())
	controller.Start(context.Background())
	require.Zero(t, controller.Stats().Samples)
}

func TestControllerLogsTransitionsAndAnomalies(t *testing.T) {
	recorder := &recordingLogger{}
	controller, stepper := newTestController(t, Options{Logger: recorder})
	require.NotPanics(t, func() {
		stepper.AdvanceTo(11 * time.Second)
	})
	require.Equal(t, ModeMitigation, controller.Mode())

	messages := recorder.Messages()
	require.Len(t, messages, 2)
	require.Contains(t, messages[0], "periodic: STARTUP -> INCREASE, ratio: ")
	require.Contains(t, messages[0], ", base window: 40000")
	require.Contains(t, messages[1], "periodic: INCREASE -> MITIGATION")

	require.NotPanics(t, func() {
		controller.OnPacketAcked(stepper.Now(), PacketRecord{SentBytes: 1200})
	})
	messages = recorder.Messages()
	require.Len(t, messages, 3)
	require.Equal(t, "periodic: acked: bytes in flight would drop below zero: 0 - 1200", messages[2])
}
