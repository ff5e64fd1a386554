package main

import (
	"context"
	"errors"

	"github.com/apex/log"
	events "github.com/docker/go-events"
	"github.com/redis/go-redis/v9"
	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	"github.com/sagernet/sing-periodic/simulation"
	"github.com/sagernet/sing-periodic/telemetry"
	"github.com/spf13/cobra"
)

var commandSimulate = &cobra.Command{
	Use:   "simulate",
	Short: "Run the controller over a simulated bottleneck",
	Example: `  periodic simulate -c periodic.yaml
  periodic simulate --duration 30 --capacity 250000`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var (
	simulateDuration float64
	simulateCapacity float64
)

func init() {
	commandSimulate.Flags().Float64Var(&simulateDuration, "duration", 0, "Simulated seconds, overrides the configuration")
	commandSimulate.Flags().Float64Var(&simulateCapacity, "capacity", 0, "Bottleneck capacity in bytes per second, overrides the configuration")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	config, entry, err := prepare("simulate")
	if err != nil {
		return err
	}
	if simulateDuration > 0 {
		config.Simulation.Duration = Seconds(simulateDuration)
	}
	if simulateCapacity > 0 {
		config.Simulation.Capacity = simulateCapacity
	}
	ctx, cancel := signalContext()
	defer cancel()

	emitter, err := newEmitter(ctx, config.Telemetry, entry)
	if err != nil {
		return err
	}
	defer emitter.Close()

	lossPolicy, err := config.Controller.LossPolicy()
	if err != nil {
		return err
	}
	options := congestion_periodic.Options{
		Params:     config.Controller.Params(),
		Logger:     newSingLogger(entry),
		LossPolicy: lossPolicy,
	}
	if emitter != nil {
		options.Emitter = emitter
	}
	controller, err := congestion_periodic.NewPeriodicController(options)
	if err != nil {
		return err
	}
	path, err := simulation.NewPath(simulation.PathConfig{
		Capacity:   config.Simulation.Capacity,
		BaseRTT:    config.Simulation.BaseRTT.Duration(),
		QueueLimit: congestion.ByteCount(config.Simulation.QueueLimit),
	})
	if err != nil {
		return err
	}

	entry.WithFields(log.Fields{
		"capacity":    config.Simulation.Capacity,
		"base_rtt":    config.Simulation.BaseRTT.Duration().String(),
		"queue_limit": config.Simulation.QueueLimit,
		"duration":    config.Simulation.Duration.Duration().String(),
	}).Info("simulation started")
	result, err := simulation.Run(ctx, controller, path, config.Simulation.Duration.Duration(), config.Simulation.Step.Duration())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	stats := controller.Stats()
	fields := log.Fields{
		"elapsed":           result.Duration.String(),
		"packets_sent":      result.PacketsSent,
		"packets_lost":      result.PacketsLost,
		"throughput":        result.Throughput(),
		"utilization":       result.Throughput() / config.Simulation.Capacity,
		"final_mode":        result.FinalMode.String(),
		"final_window":      int64(result.FinalWindow),
		"min_window":        int64(result.MinWindow),
		"transitions":       stats.Transitions,
		"samples":           stats.Samples,
		"anomalies":         stats.Anomalies,
		"left_startup":      result.LeftStartup.String(),
		"reentered_startup": result.ReenteredStartup,
	}
	if ratio, loaded := controller.Analyzer().HarmonicRatio(); loaded {
		fields["harmonic_ratio"] = ratio
	}
	if bdp, loaded := controller.Analyzer().BDPEstimate(); loaded {
		fields["bdp"] = int64(bdp)
	}
	if emitter != nil {
		dropped := emitter.Dropped()
		fields["telemetry_sent"] = emitter.Sent()
		fields["telemetry_dropped"] = dropped.Full + dropped.Sink + dropped.Closed
	}
	entry.WithFields(fields).Info("simulation finished")
	return nil
}

// newEmitter returns nil when no telemetry destination is configured.
func newEmitter(ctx context.Context, config TelemetryConfig, entry *log.Entry) (*telemetry.Emitter, error) {
	var sinks []events.Sink
	closeAll := func() {
		for _, sink := range sinks {
			_ = sink.Close()
		}
	}
	if config.UDP != "" {
		sink, err := telemetry.NewUDPSink(ctx, config.UDP)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, telemetry.Named("udp", sink))
	}
	if config.WebSocket != "" {
		sink, err := telemetry.DialWebSocketSink(ctx, config.WebSocket, nil)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, telemetry.Named("websocket", sink))
	}
	if config.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{Addr: config.Redis.Address})
		sinks = append(sinks, telemetry.Named("redis", telemetry.NewRedisSink(client, config.Redis.Channel)))
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return telemetry.NewEmitter(telemetry.Fanout(sinks...), telemetry.EmitterOptions{
		QueueSize: config.QueueSize,
		Logger:    newSingLogger(entry.WithField("component", "telemetry")),
	}), nil
}
