// Command metaapi-stream connects one account, logs its synchronization
// events, and serves the client's Prometheus metrics over HTTP until
// interrupted.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marceluphd/metaapi-go-sdk/internal/logging"
	"github.com/marceluphd/metaapi-go-sdk/pkg/metaapi"
)

func main() {
	var (
		accountID   = flag.String("account", "", "MetaApi account id to subscribe to")
		metricsAddr = flag.String("metrics-addr", ":9108", "address to serve /metrics on")
		logLevel    = flag.String("log-level", "info", "debug, info, warn, or error")
		logFormat   = flag.String("log-format", "json", "json or pretty")
	)
	flag.Parse()

	logger := logging.New(logging.Config{Level: *logLevel, Format: logging.Format(*logFormat)})

	if *accountID == "" {
		logger.Fatal().Msg("-account is required")
	}

	opts, err := metaapi.LoadOptionsFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load options from environment")
	}

	client, err := metaapi.New(opts, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct client")
	}

	client.AddReconnectListener(func() {
		logger.Info().Str("accountId", *accountID).Msg("reconnected")
	})
	client.AddSyncListener(*accountID, &metaapi.Listener{
		OnConnected: func() {
			logger.Info().Str("accountId", *accountID).Msg("connected")
		},
		OnDisconnected: func() {
			logger.Warn().Str("accountId", *accountID).Msg("disconnected")
		},
		OnSynchronizationStarted: func() {
			logger.Info().Str("accountId", *accountID).Msg("synchronization started")
		},
		OnDealSynchronizationFinished: func(synchronizationID string) {
			logger.Info().Str("accountId", *accountID).Str("synchronizationId", synchronizationID).
				Msg("deal synchronization finished")
		},
		OnOrderSynchronizationFinished: func(synchronizationID string) {
			logger.Info().Str("accountId", *accountID).Str("synchronizationId", synchronizationID).
				Msg("order synchronization finished")
		},
		OnBrokerConnectionStatusChanged: func(connected bool) {
			logger.Info().Str("accountId", *accountID).Bool("connected", connected).
				Msg("broker connection status changed")
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(client.Metrics().Registry(), promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initial connect failed")
	}
	client.Subscribe(ctx, *accountID)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	client.Close()
}
