package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	listen := flag.String("listen", "", "APX listen address (overrides config)")
	statusAddr := flag.String("status", "", "HTTP status address (overrides config)")
	eventLog := flag.String("event-log", "", "Text event log path (overrides config)")
	storeURL := flag.String("store", "", "Definition store: JSON file or postgres:// URL (overrides config)")
	tapAddr := flag.String("tap", "", "NNG URL to publish port updates on (overrides config)")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apx-server: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.ListenAddr, *listen)
	override(&cfg.StatusAddr, *statusAddr)
	override(&cfg.EventLog, *eventLog)
	override(&cfg.Store, *storeURL)
	override(&cfg.TapAddr, *tapAddr)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "apx-server: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(*logFormat, os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)

	registry := metrics.DefaultRegistry()
	srv, err := server.New(cfg, server.WithLogger(logger), server.WithMetrics(registry))
	if err != nil {
		logger.Error("failed to create server", logging.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("apx server started",
		logging.String("listen_addr", srv.Addr().String()),
		logging.String("instance_id", srv.InstanceID().String()))

	if cfg.StatusAddr == "" {
		waitForSignal(logger)
		if err := srv.Stop(); err != nil {
			logger.Error("shutdown error", logging.Error(err))
			os.Exit(1)
		}
		return
	}

	status := server.NewGracefulServer(cfg.StatusAddr, srv.StatusHandler(), logger)
	status.ShutdownTimeout = cfg.ShutdownTimeout
	status.OnShutdown(func(context.Context) error {
		return srv.Stop()
	})
	status.SetConfigReloadFunc(func() error {
		return reloadLogLevel(*configPath, logger)
	})
	if err := status.Start(); err != nil {
		logger.Error("status server failed", logging.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*server.Config, error) {
	if path == "" {
		return server.DefaultConfig(), nil
	}
	return server.LoadConfig(path)
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// reloadLogLevel re-reads the config file and applies its log level. The
// other settings need a restart.
func reloadLogLevel(path string, logger logging.Logger) error {
	if path == "" {
		return nil
	}
	cfg, err := server.LoadConfig(path)
	if err != nil {
		return err
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger.Info("log level reloaded", logging.String("log_level", cfg.LogLevel))
	return nil
}

func waitForSignal(logger logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", logging.String("signal", sig.String()))
}
