package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/config"
	"github.com/zorak1103/ha-macs/internal/discovery"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/handlers"
	"github.com/zorak1103/ha-macs/internal/homeassistant"
	"github.com/zorak1103/ha-macs/internal/logging"
	"github.com/zorak1103/ha-macs/internal/mcp"
	"github.com/zorak1103/ha-macs/internal/mqtt"
	"github.com/zorak1103/ha-macs/internal/reconcile"
	"github.com/zorak1103/ha-macs/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	// discoverySettle gives Home Assistant time to register freshly
	// announced entities before their ids are checked.
	discoverySettle = 5 * time.Second
)

// run executes the main service logic.
func (a *App) run(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithViper(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.Logging.Level, os.Stdout)
	logging.SetDefault(logger)

	version := reconcile.Version(cfg.Frontend.Version)
	logger.Info("Starting ha-macs", "version", version, "port", cfg.Server.Port)
	logger.Info("Home Assistant URL", "url", cfg.HomeAssistant.URL)
	logger.Info("Log level", "level", logging.LevelString(logger.Level()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	cat := catalog.Default()

	st, err := store.Open(store.Config{
		Path:        cfg.Store.Path,
		WALMode:     cfg.Store.WALMode,
		BusyTimeout: cfg.Store.BusyTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("Error closing state store", "error", closeErr)
		}
	}()
	if err := st.RestoreCatalog(ctx, cat); err != nil {
		return fmt.Errorf("restoring entity states: %w", err)
	}
	cat.Subscribe(st)

	// The reconciler needs the connected client, so reconnects only signal.
	reconcileNow := make(chan struct{}, 1)
	haConfig := homeassistant.DefaultWSClientConfig()
	haConfig.OnDisconnect = func(err error) {
		logger.Warn("Home Assistant connection lost", "error", err)
	}
	haConfig.OnReconnect = func(attempts int) {
		logger.Info("Home Assistant reconnected", "attempts", attempts)
		select {
		case reconcileNow <- struct{}{}:
		default:
		}
	}

	logger.Info("Connecting to Home Assistant WebSocket API...")
	ha, err := homeassistant.NewConnectedWSClient(ctx, cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, &haConfig)
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	logger.Info("Connected to Home Assistant WebSocket API")
	defer func() {
		logger.Info("Closing Home Assistant WebSocket connection...")
		if closeErr := homeassistant.CloseClient(ha); closeErr != nil {
			logger.Error("Error closing Home Assistant client", "error", closeErr)
		}
	}()

	dispatcher := dispatch.New(ha, cat, logger)
	reconciler := reconcile.New(ha, cat, reconcileOptions(cfg), logger)

	logger.Info("Connecting to MQTT broker...", "broker", cfg.MQTT.BrokerURL())
	broker, err := mqtt.Connect(cfg.MQTT, logger.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	defer func() { _ = broker.Close() }()

	bridge := discovery.New(broker, cat, dispatcher, version, logger)
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting MQTT discovery: %w", err)
	}
	broker.SetOnConnect(func() {
		if err := bridge.PublishAll(); err != nil {
			logger.Warn("Republishing discovery failed", "error", err)
		}
	})

	go reconcileLoop(ctx, reconciler, reconcileNow, discoverySettle)

	registry := mcp.NewRegistry()
	handlers.RegisterAll(registry, dispatcher, cat, reconciler)
	logger.Info("Registered MCP tools", "count", registry.ToolCount())
	registry.LogRegistered(logger)

	server := mcp.NewServer(registry, mcp.ServerOptions{
		Port:    cfg.Server.Port,
		Version: version,
		WWWDir:  cfg.Frontend.WWWDir,
		HealthChecks: map[string]mcp.HealthCheck{
			"store": st.HealthCheck,
			"mqtt":  broker.HealthCheck,
			"homeassistant": func(context.Context) error {
				if !ha.WS().IsHealthy() {
					return homeassistant.ErrNotConnected
				}
				return nil
			},
		},
	}, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// reconcileLoop runs r once after settle and again on every trigger until
// ctx is done. Failures are logged by the reconciler.
func reconcileLoop(ctx context.Context, r handlers.Reconciler, trigger <-chan struct{}, settle time.Duration) {
	timer := time.NewTimer(settle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-trigger:
		}
		_, _ = r.Run(ctx)
	}
}
