package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var mainCommand = &cobra.Command{
	Use:   "periodic",
	Short: "Periodic congestion control tools",
	Long: "Periodic congestion control tools.\n\n" +
		"simulate runs the controller against a modelled bottleneck and\n" +
		"collect receives the samples it emits.",
	SilenceUsage: true,
}

func init() {
	mainCommand.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	mainCommand.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	mainCommand.AddCommand(commandSimulate, commandCollect)
}

// prepare loads the configuration and builds the logger for a command.
func prepare(component string) (*Config, *log.Entry, error) {
	config, err := ReadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}
	logger, err := newLogger(os.Stderr, config.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return config, logger.WithField("component", component), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
