package main

import (
	"context"
	"errors"
	golog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/sagernet/sing-periodic/collector"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/spf13/cobra"
)

var commandCollect = &cobra.Command{
	Use:     "collect",
	Short:   "Receive telemetry samples and serve them to viewers",
	Example: `  periodic collect -c periodic.yaml`,
	Args:    cobra.NoArgs,
	RunE:    runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
	config, entry, err := prepare("collect")
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	instance := collector.New(collector.Options{
		Capacity: config.Collector.Capacity,
		Logger:   newSingLogger(entry),
	})
	defer instance.Close()

	var (
		group sync.WaitGroup
		errs  = make(chan error, 3)
	)
	run := func(name string, serve func() error) {
		group.Add(1)
		go func() {
			defer group.Done()
			if err := serve(); err != nil {
				errs <- E.Cause(err, name)
				cancel()
			}
		}()
	}

	if config.Collector.UDPListen != "" {
		conn, err := net.ListenPacket("udp", config.Collector.UDPListen)
		if err != nil {
			return E.Cause(err, "listen telemetry")
		}
		defer conn.Close()
		entry.WithField("address", conn.LocalAddr().String()).Info("udp ingest started")
		run("udp ingest", func() error {
			return instance.ServeUDP(ctx, conn)
		})
	}
	if config.Collector.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{Addr: config.Collector.Redis.Address})
		defer client.Close()
		entry.WithField("address", config.Collector.Redis.Address).Info("redis ingest started")
		run("redis ingest", func() error {
			return instance.ServeRedis(ctx, client, config.Collector.Redis.Channel)
		})
	}
	if config.Collector.HTTPListen != "" {
		server := &http.Server{
			Addr:              config.Collector.HTTPListen,
			Handler:           handlers.LoggingHandler(golog.Writer(), instance.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		entry.WithField("address", server.Addr).Info("http server started")
		run("http server", func() error {
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	group.Wait()
	close(errs)
	var result []error
	for err := range errs {
		result = append(result, err)
	}
	entry.Info("collector stopped")
	return E.Errors(result...)
}
