package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmer/wsbridge/internal/config"
	"github.com/jpalmer/wsbridge/internal/connection"
	"github.com/jpalmer/wsbridge/internal/journal"
	"github.com/jpalmer/wsbridge/internal/metrics"
	"github.com/jpalmer/wsbridge/internal/relay"
	"github.com/jpalmer/wsbridge/internal/transport"
	"github.com/jpalmer/wsbridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bridge.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bridge",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"target_url", cfg.Target.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connection manager over the gorilla transport
	dialer := transport.NewWSDialer(transport.DialConfig{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		ProbeTimeout:     cfg.Connection.ProbeTimeout,
	}, logger)

	mgr := connection.NewManager(connection.ManagerConfig{
		SendResolveDelay: cfg.Connection.SendResolveDelay,
	}, dialer, logger)
	defer mgr.Close()

	// Metrics observer consumes its own subscription
	metricsSub := mgr.Events()
	go func() {
		for ev := range metricsSub.C() {
			metrics.Observe(ev)
		}
	}()
	metrics.StartCollection()

	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
	metricsServer.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		metricsServer.Stop(shutdownCtx)
	}()

	// Journal writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := journal.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer := journal.NewWriter(journal.Config{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, mgr.Events(), pool, logger)

		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			writer.Stop(shutdownCtx)
		}()
	}

	// NATS relay
	if cfg.Relay.Enabled {
		publisher := relay.NewPublisher(relay.Config{
			InstanceID:     cfg.Instance.ID,
			URL:            cfg.Relay.URL,
			SubjectPrefix:  cfg.Relay.SubjectPrefix,
			ConnectTimeout: cfg.Relay.ConnectTimeout,
			ReconnectWait:  cfg.Relay.ReconnectWait,
			MaxReconnects:  cfg.Relay.MaxReconnects,
		}, mgr.Events(), logger)

		if err := publisher.Connect(); err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		if err := publisher.Start(ctx); err != nil {
			logger.Error("failed to start relay", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			publisher.Stop(shutdownCtx)
		}()
	}

	// Supervisor keeps the target connection alive until shutdown
	supervisor := connection.NewSupervisor(connection.SupervisorConfig{
		BaseDelay: cfg.Connection.RedialBaseDelay,
		MaxDelay:  cfg.Connection.RedialMaxDelay,
		OnRedial:  metrics.RedialsTotal.Inc,
	}, mgr, logger)

	req := transport.Request{
		URL:    cfg.Target.URL,
		Header: make(http.Header, len(cfg.Target.Headers)),
	}
	for k, v := range cfg.Target.Headers {
		req.Header.Set(k, v)
	}

	logger.Info("bridge running",
		"instance_id", cfg.Instance.ID,
		"target_url", cfg.Target.URL,
	)

	if err := supervisor.Run(ctx, req); err != nil && ctx.Err() == nil {
		logger.Error("supervisor exited", "error", err)
		os.Exit(1)
	}

	logger.Info("bridge stopped")
}
