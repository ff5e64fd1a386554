package simulation

import (
	"context"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-periodic/congestion_periodic"
)

// Result summarizes a simulation run.
type Result struct {
	Duration         time.Duration
	PacketsSent      int
	PacketsLost      int
	BytesAcked       congestion.ByteCount
	FinalMode        congestion_periodic.Mode
	FinalWindow      congestion.ByteCount
	MinWindow        congestion.ByteCount
	LeftStartup      time.Duration
	ReenteredStartup bool
}

// Throughput returns the acknowledged bytes per second.
func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.BytesAcked) / r.Duration.Seconds()
}

// Run drives controller over path for duration, advancing simulated time
// in increments of step. The sender is greedy: it sends whenever the
// window allows. The controller must not have been started.
func Run(ctx context.Context, controller *congestion_periodic.PeriodicController, path *Path, duration time.Duration, step time.Duration) (Result, error) {
	if step <= 0 {
		step = time.Millisecond
	}
	packetSize := controller.Params().MaxDatagramSize
	stepper := congestion_periodic.NewStepper(controller)
	result := Result{MinWindow: controller.CurrentWindow(), LeftStartup: -1}
	for elapsed := time.Duration(0); elapsed <= duration; elapsed += step {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stepper.AdvanceTo(elapsed)
		now := stepper.Now()

		var lost []congestion_periodic.PacketRecord
		for _, delivery := range path.Poll(now) {
			if delivery.Lost {
				lost = append(lost, delivery.Record)
				continue
			}
			controller.OnRTTMeasurement(delivery.At, delivery.RTT())
			controller.OnPacketAcked(delivery.At, delivery.Record)
			result.BytesAcked += delivery.Record.SentBytes
		}
		if len(lost) > 0 {
			controller.OnPacketsLost(now, lost)
			result.PacketsLost += len(lost)
		}

		window := controller.CurrentWindow()
		for controller.BytesInFlight()+packetSize <= window {
			record := congestion_periodic.PacketRecord{SentBytes: packetSize, SentTime: now}
			controller.OnPacketSent(record)
			path.Send(record)
			result.PacketsSent++
		}

		result.MinWindow = min(result.MinWindow, window)
		mode := controller.Mode()
		if mode != congestion_periodic.ModeStartup && result.LeftStartup < 0 {
			result.LeftStartup = elapsed
		} else if mode == congestion_periodic.ModeStartup && result.LeftStartup >= 0 {
			result.ReenteredStartup = true
		}
		result.Duration = elapsed
	}
	result.FinalMode = controller.Mode()
	result.FinalWindow = controller.CurrentWindow()
	return result, nil
}
