package main

import (
	"math"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-periodic/collector"
	"github.com/sagernet/sing-periodic/congestion_periodic"
	"github.com/sagernet/sing-periodic/telemetry"
	E "github.com/sagernet/sing/common/exceptions"
)

// Seconds is a duration written as a number of seconds.
type Seconds float64

func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

func fromDuration(d time.Duration) Seconds {
	return Seconds(d.Seconds())
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Controller ControllerConfig `yaml:"controller"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Simulation SimulationConfig `yaml:"simulation"`
	Collector  CollectorConfig  `yaml:"collector"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ControllerConfig struct {
	MaxDatagramSize      int64   `yaml:"max_datagram_size"`
	BaseWindow           int64   `yaml:"base_window"`
	Amplitude            int64   `yaml:"amplitude"`
	MinimumWindow        int64   `yaml:"minimum_window"`
	Frequency            float64 `yaml:"frequency"`
	SamplingInterval     Seconds `yaml:"sampling_interval"`
	ReferenceInterval    Seconds `yaml:"reference_interval"`
	ControlInterval      Seconds `yaml:"control_interval"`
	StartupDuration      Seconds `yaml:"startup_duration"`
	Threshold            float64 `yaml:"threshold"`
	IncreaseStep         int64   `yaml:"increase_step"`
	BDPDamping           float64 `yaml:"bdp_damping"`
	InitialRTT           Seconds `yaml:"initial_rtt"`
	HistoryPeriods       int     `yaml:"history_periods"`
	AdaptFrequency       bool    `yaml:"adapt_frequency"`
	MinPeriodRTTs        float64 `yaml:"min_period_rtts"`
	MinFrequencyFraction float64 `yaml:"min_frequency_fraction"`
	// Factor applied to the base window on loss. Zero disables the
	// reaction.
	LossBackoff float64 `yaml:"loss_backoff"`
}

type RedisConfig struct {
	Address string `yaml:"address"`
	Channel string `yaml:"channel"`
}

type TelemetryConfig struct {
	UDP       string      `yaml:"udp"`
	WebSocket string      `yaml:"websocket"`
	Redis     RedisConfig `yaml:"redis"`
	QueueSize int         `yaml:"queue_size"`
}

type SimulationConfig struct {
	Capacity   float64 `yaml:"capacity"`
	BaseRTT    Seconds `yaml:"base_rtt"`
	QueueLimit int64   `yaml:"queue_limit"`
	Duration   Seconds `yaml:"duration"`
	Step       Seconds `yaml:"step"`
}

type CollectorConfig struct {
	UDPListen  string      `yaml:"udp_listen"`
	HTTPListen string      `yaml:"http_listen"`
	Redis      RedisConfig `yaml:"redis"`
	Capacity   int         `yaml:"capacity"`
}

func DefaultConfig() *Config {
	params := congestion_periodic.DefaultParams()
	return &Config{
		Log: LogConfig{Level: "info"},
		Controller: ControllerConfig{
			MaxDatagramSize:      int64(params.MaxDatagramSize),
			BaseWindow:           int64(params.BaseWindow),
			Amplitude:            int64(params.Amplitude),
			MinimumWindow:        int64(params.MinimumWindow),
			Frequency:            params.Frequency,
			SamplingInterval:     fromDuration(params.SamplingInterval),
			ReferenceInterval:    fromDuration(params.ReferenceInterval),
			ControlInterval:      fromDuration(params.ControlInterval),
			StartupDuration:      fromDuration(params.StartupDuration),
			Threshold:            params.Threshold,
			IncreaseStep:         int64(params.IncreaseStep),
			BDPDamping:           params.BDPDamping,
			InitialRTT:           fromDuration(params.InitialRTT),
			HistoryPeriods:       params.HistoryPeriods,
			AdaptFrequency:       params.AdaptFrequency,
			MinPeriodRTTs:        params.MinPeriodRTTs,
			MinFrequencyFraction: params.MinFrequencyFraction,
		},
		Telemetry: TelemetryConfig{
			QueueSize: telemetry.DefaultQueueSize,
		},
		Simulation: SimulationConfig{
			Capacity:   1250000,
			BaseRTT:    0.04,
			QueueLimit: 64000,
			Duration:   60,
			Step:       0.001,
		},
		Collector: CollectorConfig{
			UDPListen:  "127.0.0.1:9999",
			HTTPListen: "127.0.0.1:8080",
			Capacity:   collector.DefaultCapacity,
		},
	}
}

// ReadConfig overlays the YAML file at path on the defaults. Unknown keys
// are rejected.
func ReadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, E.Cause(err, "open configuration file")
	}
	defer file.Close()
	err = yaml.NewDecoder(file, yaml.Strict()).Decode(config)
	if err != nil {
		return nil, E.Cause(err, "parse configuration file")
	}
	return config, nil
}

func (c ControllerConfig) Params() *congestion_periodic.Params {
	return &congestion_periodic.Params{
		MaxDatagramSize:      congestion.ByteCount(c.MaxDatagramSize),
		BaseWindow:           congestion.ByteCount(c.BaseWindow),
		Amplitude:            congestion.ByteCount(c.Amplitude),
		MinimumWindow:        congestion.ByteCount(c.MinimumWindow),
		Frequency:            c.Frequency,
		SamplingInterval:     c.SamplingInterval.Duration(),
		ReferenceInterval:    c.ReferenceInterval.Duration(),
		ControlInterval:      c.ControlInterval.Duration(),
		StartupDuration:      c.StartupDuration.Duration(),
		Threshold:            c.Threshold,
		IncreaseStep:         congestion.ByteCount(c.IncreaseStep),
		BDPDamping:           c.BDPDamping,
		InitialRTT:           c.InitialRTT.Duration(),
		HistoryPeriods:       c.HistoryPeriods,
		AdaptFrequency:       c.AdaptFrequency,
		MinPeriodRTTs:        c.MinPeriodRTTs,
		MinFrequencyFraction: c.MinFrequencyFraction,
	}
}

func (c ControllerConfig) LossPolicy() (congestion_periodic.LossPolicy, error) {
	switch {
	case c.LossBackoff == 0:
		return nil, nil
	case c.LossBackoff < 0 || c.LossBackoff >= 1:
		return nil, E.New("invalid loss backoff: ", strconv.FormatFloat(c.LossBackoff, 'g', -1, 64))
	default:
		return congestion_periodic.MultiplicativeDecrease(c.LossBackoff), nil
	}
}
