// Command polard runs the sailing-performance learning engine: it ingests
// instrument samples from the onboard MQTT gateway, learns the vessel's
// polar, persists it to SQLite, and serves the result over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/saltline/polar-engine/internal/adapter/httpapi"
	kafkaadapter "github.com/saltline/polar-engine/internal/adapter/kafka"
	mqttadapter "github.com/saltline/polar-engine/internal/adapter/mqtt"
	"github.com/saltline/polar-engine/internal/adapter/sqlite"
	"github.com/saltline/polar-engine/internal/config"
	"github.com/saltline/polar-engine/internal/domain"
	"github.com/saltline/polar-engine/internal/engine"
	"github.com/saltline/polar-engine/internal/observability"
	"github.com/saltline/polar-engine/internal/polar"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	repo, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open bucket database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer repo.Close()

	storeCfg := polar.DefaultConfig()
	storeCfg.SpeedBucketKnots = cfg.SpeedBucketKnots
	storeCfg.AngleBucketDegrees = cfg.AngleBucketDegrees
	store := polar.New(storeCfg, repo, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Initialize(ctx); err != nil {
		logger.Error("failed to initialize bucket store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Optional shore uplink (enabled via UPLINK_BROKERS).
	var sink engine.ObservationSink
	if cfg.UplinkEnabled() {
		uplink := kafkaadapter.NewUplink(cfg.UplinkBrokers, cfg.UplinkTopic, logger, metrics)
		defer uplink.Close()
		sink = uplink
		logger.Info("shore uplink enabled", "topic", cfg.UplinkTopic)
	} else {
		logger.Info("shore uplink disabled")
	}

	thresholds := domain.DefaultGateThresholds()
	thresholds.WindWindow = cfg.WindWindow

	source := mqttadapter.NewSource(mqttadapter.Config{
		Broker:   cfg.MQTTBroker,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		Topic:    cfg.MQTTTopic,
		UseTLS:   cfg.MQTTUseTLS,
	}, logger)

	eng := engine.New(source, store, engine.Config{
		Thresholds:  thresholds,
		SteadyDwell: cfg.SteadyDwell,
		Sink:        sink,
	}, logger, metrics)

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	srv := httpapi.NewServer(cfg.HTTPAddr, eng, eng, store, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
