package congestion_periodic

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"
)

// SampleEmitter receives every recorded sample. Emit must not block.
type SampleEmitter interface {
	Emit(sample Sample)
}

// LossPolicy decides how the base window reacts to loss. It is consulted
// on the modulation tick following a loss with the bytes lost since the
// previous tick. Without a policy losses only update LastLossTime.
type LossPolicy interface {
	OnLoss(baseWindow float64, lostBytes congestion.ByteCount) float64
}

// LossPolicyFunc adapts a function to LossPolicy.
type LossPolicyFunc func(baseWindow float64, lostBytes congestion.ByteCount) float64

func (f LossPolicyFunc) OnLoss(baseWindow float64, lostBytes congestion.ByteCount) float64 {
	return f(baseWindow, lostBytes)
}

// MultiplicativeDecrease returns a policy that scales the base window by
// factor on every tick that saw loss.
func MultiplicativeDecrease(factor float64) LossPolicy {
	return LossPolicyFunc(func(baseWindow float64, _ congestion.ByteCount) float64 {
		return baseWindow * factor
	})
}

type Options struct {
	// Params defaults to DefaultParams().
	Params     *Params
	Clock      Clock
	Logger     logger.Logger
	Emitter    SampleEmitter
	LossPolicy LossPolicy
}

// Stats are counters kept by the controller since construction.
type Stats struct {
	Anomalies   uint64
	Samples     uint64
	Transitions uint64
}

// PeriodicController modulates the congestion window with a sinusoid
// around a base window and moves the base window according to how much of
// the offered window shows up in acknowledged throughput.
//
// Transport events only touch atomics and never wait on the periodic
// procedures.
type PeriodicController struct {
	params     *Params
	clock      Clock
	logger     logger.Logger
	emitter    SampleEmitter
	lossPolicy LossPolicy
	analyzer   *ResponseAnalyzer
	startTime  time.Time

	minimumWindow     float64
	amplitudeFraction float64

	bytesInFlight   atomic.Int64
	ackedInInterval atomic.Uint64 // float64 bits
	lostInInterval  atomic.Int64
	latestRTT       atomic.Int64
	window          atomic.Int64
	lastLossTime    atomic.Int64 // unix nanoseconds, 0 before the first loss
	mode            atomic.Int32

	anomalies   atomic.Uint64
	samples     atomic.Uint64
	transitions atomic.Uint64

	// Tick state.
	access         sync.Mutex
	baseWindow     float64
	phase          float64
	frequency      float64
	lastModulation time.Time

	startupState    *StartupState
	increaseState   *IncreaseState
	mitigationState *MitigationState
	stableState     *StableState

	lifecycle sync.Mutex
	closed    bool
	started   bool
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	closeOnce sync.Once
}

func NewPeriodicController(options Options) (*PeriodicController, error) {
	params := options.Params
	if params == nil {
		params = DefaultParams()
	} else {
		copied := *params
		params = &copied
	}
	err := params.Validate()
	if err != nil {
		return nil, E.Cause(err, "create periodic controller")
	}
	clock := options.Clock
	if clock == nil {
		clock = DefaultClock{}
	}
	c := &PeriodicController{
		params:            params,
		clock:             clock,
		logger:            options.Logger,
		emitter:           options.Emitter,
		lossPolicy:        options.LossPolicy,
		analyzer:          NewResponseAnalyzer(params),
		startTime:         clock.Now(),
		minimumWindow:     float64(params.MinimumWindow),
		amplitudeFraction: params.amplitudeFraction(),
		baseWindow:        float64(max(params.BaseWindow, params.MinimumWindow)),
		frequency:         params.Frequency,
		startupState:      &StartupState{},
		increaseState:     &IncreaseState{},
		mitigationState:   &MitigationState{},
		stableState:       &StableState{},
	}
	c.latestRTT.Store(int64(params.InitialRTT))
	c.window.Store(int64(c.baseWindow))
	c.mode.Store(int32(ModeStartup))
	return c, nil
}

// OnPacketSent accounts a packet as in flight.
func (c *PeriodicController) OnPacketSent(record PacketRecord) {
	c.bytesInFlight.Add(int64(record.SentBytes))
}

// OnPacketAcked releases an acknowledged packet and adds it to the bytes
// acknowledged in the current sampling interval.
func (c *PeriodicController) OnPacketAcked(now time.Time, record PacketRecord) {
	c.release(record.SentBytes, "acked")
	c.addAcked(float64(record.SentBytes) * c.params.ackScale())
}

// OnPacketsLost releases lost packets and records the loss time.
func (c *PeriodicController) OnPacketsLost(now time.Time, records []PacketRecord) {
	var lost congestion.ByteCount
	for _, record := range records {
		c.release(record.SentBytes, "lost")
		lost += record.SentBytes
	}
	if len(records) == 0 {
		return
	}
	c.lastLossTime.Store(now.UnixNano())
	c.lostInInterval.Add(int64(lost))
}

// OnPacketsExpired releases packets the transport gave up on. Expiry is
// not treated as congestion.
func (c *PeriodicController) OnPacketsExpired(records []PacketRecord) {
	for _, record := range records {
		c.release(record.SentBytes, "expired")
	}
}

func (c *PeriodicController) OnRTTMeasurement(now time.Time, rtt time.Duration) {
	if rtt < 0 {
		c.recordAnomaly("rtt", "negative RTT measurement: ", rtt)
		return
	}
	c.latestRTT.Store(int64(rtt))
}

// CurrentWindow returns the congestion window computed by the last
// modulation tick.
func (c *PeriodicController) CurrentWindow() congestion.ByteCount {
	return congestion.ByteCount(c.window.Load())
}

func (c *PeriodicController) Mode() Mode {
	return Mode(c.mode.Load())
}

func (c *PeriodicController) BytesInFlight() congestion.ByteCount {
	return congestion.ByteCount(c.bytesInFlight.Load())
}

func (c *PeriodicController) LatestRTT() time.Duration {
	return time.Duration(c.latestRTT.Load())
}

func (c *PeriodicController) BaseWindow() congestion.ByteCount {
	c.access.Lock()
	defer c.access.Unlock()
	return congestion.ByteCount(c.baseWindow)
}

// Frequency returns the modulation frequency in Hz.
func (c *PeriodicController) Frequency() float64 {
	c.access.Lock()
	defer c.access.Unlock()
	return c.frequency
}

// LastLossTime returns the time of the most recent loss event.
func (c *PeriodicController) LastLossTime() (time.Time, bool) {
	lossTime := c.lastLossTime.Load()
	if lossTime == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, lossTime), true
}

func (c *PeriodicController) Stats() Stats {
	return Stats{
		Anomalies:   c.anomalies.Load(),
		Samples:     c.samples.Load(),
		Transitions: c.transitions.Load(),
	}
}

func (c *PeriodicController) Analyzer() *ResponseAnalyzer {
	return c.analyzer
}

func (c *PeriodicController) Params() Params {
	return *c.params
}

// StartTime is the origin of sample elapsed times.
func (c *PeriodicController) StartTime() time.Time {
	return c.startTime
}

// Start runs the modulation, sampling and state machine procedures until
// ctx is done or Close is called. Each procedure runs once immediately.
func (c *PeriodicController) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.loops.Add(3)
	go c.loop(ctx, c.params.ModulationInterval(), c.modulate)
	go c.loop(ctx, c.params.SamplingInterval, c.sample)
	go c.loop(ctx, c.params.ControlInterval, c.control)
}

// Close stops the periodic procedures and waits for them to return.
func (c *PeriodicController) Close() error {
	c.closeOnce.Do(func() {
		c.lifecycle.Lock()
		c.closed = true
		if c.cancel != nil {
			c.cancel()
		}
		c.lifecycle.Unlock()
		c.loops.Wait()
	})
	return nil
}

func (c *PeriodicController) loop(ctx context.Context, interval time.Duration, tick func(now time.Time)) {
	defer c.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tick(c.clock.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *PeriodicController) modulate(now time.Time) {
	c.access.Lock()
	defer c.access.Unlock()
	if c.lastModulation.IsZero() {
		c.phase = 2 * math.Pi * c.frequency * now.Sub(c.startTime).Seconds()
	} else if delta := now.Sub(c.lastModulation).Seconds(); delta > 0 {
		c.phase += 2 * math.Pi * c.frequency * delta
	}
	c.phase = math.Mod(c.phase, 2*math.Pi)
	c.lastModulation = now

	baseWindow := c.stateFor(c.Mode()).OnModulationTick(c.baseWindow, c.analyzer, c.params)
	if lost := c.lostInInterval.Swap(0); lost > 0 && c.lossPolicy != nil {
		baseWindow = c.lossPolicy.OnLoss(baseWindow, congestion.ByteCount(lost))
	}
	c.baseWindow = floorAt(finiteOr(baseWindow, c.baseWindow), c.minimumWindow)

	window := c.baseWindow + c.amplitudeFraction*c.baseWindow*math.Sin(c.phase)
	window = floorAt(finiteOr(window, c.baseWindow), c.minimumWindow)
	c.window.Store(int64(window))
	CongestionWindowHistogram.Observe(window)
}

func (c *PeriodicController) sample(now time.Time) {
	elapsed := now.Sub(c.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	sample := Sample{
		Elapsed:    elapsed,
		Window:     c.CurrentWindow(),
		AckedBytes: math.Float64frombits(c.ackedInInterval.Swap(0)),
		LatestRTT:  c.LatestRTT(),
	}
	err := c.analyzer.RecordSample(sample)
	if err != nil {
		c.recordAnomaly("sample", err)
		return
	}
	c.samples.Add(1)
	SamplesTotal.Inc()
	if c.emitter != nil {
		c.emitter.Emit(sample)
	}
}

func (c *PeriodicController) control(now time.Time) {
	c.access.Lock()
	defer c.access.Unlock()
	mode := c.Mode()
	ratio, ratioOK := c.analyzer.WindowToResponseRatio()
	nextMode, modeChanged := c.stateFor(mode).OnControlTick(controlInput{
		Elapsed: now.Sub(c.startTime),
		Ratio:   ratio,
		RatioOK: ratioOK,
	}, c.params)
	if modeChanged && nextMode != mode {
		c.mode.Store(int32(nextMode))
		c.transitions.Add(1)
		ModeTransitions.WithLabelValues(mode.String(), nextMode.String()).Inc()
		c.debug("periodic: ", mode, " -> ", nextMode, ", ratio: ", formatFloat(ratio), ", base window: ", int64(c.baseWindow))
	}
	if c.params.AdaptFrequency {
		c.frequency = c.analyzer.AdaptedFrequency()
	}
}

func (c *PeriodicController) stateFor(mode Mode) stateHandler {
	switch mode {
	case ModeIncrease:
		return c.increaseState
	case ModeMitigation:
		return c.mitigationState
	case ModeStable:
		return c.stableState
	default:
		return c.startupState
	}
}

// release subtracts bytes from the bytes in flight, clamping at zero.
func (c *PeriodicController) release(bytes congestion.ByteCount, event string) {
	for {
		current := c.bytesInFlight.Load()
		next := current - int64(bytes)
		clamped := next < 0
		if clamped {
			next = 0
		}
		if c.bytesInFlight.CompareAndSwap(current, next) {
			if clamped {
				c.recordAnomaly(event, "bytes in flight would drop below zero: ", current, " - ", int64(bytes))
			}
			return
		}
	}
}

func (c *PeriodicController) addAcked(bytes float64) {
	for {
		current := c.ackedInInterval.Load()
		next := math.Float64bits(math.Float64frombits(current) + bytes)
		if c.ackedInInterval.CompareAndSwap(current, next) {
			return
		}
	}
}

func (c *PeriodicController) recordAnomaly(event string, message ...any) {
	c.anomalies.Add(1)
	AccountingAnomalies.WithLabelValues(event).Inc()
	c.debug(append([]any{"periodic: ", event, ": "}, message...)...)
}

func (c *PeriodicController) debug(message ...any) {
	if c.logger != nil {
		c.logger.Debug(message...)
	}
}
