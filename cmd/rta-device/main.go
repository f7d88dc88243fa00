// Command rta-device is a reference on-device component.
//
// It serves the bridge protocol from an in-memory scene graph so clients
// and test suites can run without a device. The state comes from a YAML or
// JSON file, or a small built-in demo scene.
//
// Usage:
//
//	rta-device [flags]
//
// Flags:
//
//	-listen string        Listen address (default ":9000")
//	-state string         State file (YAML or JSON)
//	-registry string      File the registry is persisted to
//	-reset                Clear the persisted registry before starting
//	-observe-timeout dur  Default observe timeout (default 5s)
//	-simulate             Increment global.tick every tick interval
//	-tick duration        Simulation interval (default 1s)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File to write the CBOR protocol log to
//
// Examples:
//
//	# Serve the demo scene with a ticking global field
//	rta-device -simulate
//
//	# Serve a captured state with protocol logging
//	rta-device -state scene.yaml -protocol-log device.log
//
//	# Keep registry writes across restarts
//	rta-device -registry /var/lib/rta-device/registry.json
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/persistence"
	"github.com/georgejecook/roku-test-automation/pkg/transport"
)

// Config holds the device configuration.
type Config struct {
	Listen         string
	StateFile      string
	RegistryFile   string
	Reset          bool
	ObserveTimeout time.Duration
	Simulate       bool
	Tick           time.Duration
	LogLevel       string
	ProtocolLog    string
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", ":9000", "Listen address")
	flag.StringVar(&config.StateFile, "state", "", "State file (YAML or JSON)")
	flag.StringVar(&config.RegistryFile, "registry", "", "File the registry is persisted to")
	flag.BoolVar(&config.Reset, "reset", false, "Clear the persisted registry before starting")
	flag.DurationVar(&config.ObserveTimeout, "observe-timeout", interaction.DefaultObserveTimeout, "Default observe timeout")
	flag.BoolVar(&config.Simulate, "simulate", false, "Increment global.tick every tick interval")
	flag.DurationVar(&config.Tick, "tick", time.Second, "Simulation interval")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File to write the CBOR protocol log to")
}

func main() {
	flag.Parse()

	logger := setupLogging(config.LogLevel)

	serverConfig := demoState()
	if config.StateFile != "" {
		loaded, err := loadState(config.StateFile)
		if err != nil {
			logger.Error("failed to load state", "error", err)
			os.Exit(1)
		}
		serverConfig = loaded
	}
	serverConfig.ObserveTimeout = config.ObserveTimeout
	serverConfig.Logger = logger

	if config.RegistryFile != "" {
		if err := attachRegistryStore(&serverConfig, persistence.NewRegistryStore(config.RegistryFile), config.Reset, logger); err != nil {
			logger.Error("failed to load registry", "error", err)
			os.Exit(1)
		}
	}

	device := interaction.NewServer(serverConfig)
	registerFuncs(device)

	var protoLogger log.Logger
	if config.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			logger.Error("failed to open protocol log", "error", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		protoLogger = fileLogger
		logger.Info("protocol logging enabled", "path", config.ProtocolLog)
	}

	srv, err := transport.NewServer(transport.ServerConfig{
		Address: config.Listen,
		Handler: device,
		Logger:  protoLogger,
		OnConnect: func(conn *transport.ServerConn) {
			logger.Info("client connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			logger.Info("client disconnected", "conn_id", conn.ConnID())
		},
		OnError: func(_ *transport.ServerConn, err error) {
			logger.Warn("connection error", "error", err)
		},
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("on-device component listening", "addr", srv.Addr().String(),
		"registry_sections", device.RegistrySections())

	if config.Simulate {
		go runSimulation(ctx, device, config.Tick, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	if err := srv.Stop(); err != nil {
		logger.Warn("error stopping server", "error", err)
	}
}

// attachRegistryStore seeds the registry from store and saves every change
// back to it. A persisted registry replaces the one from the state file.
func attachRegistryStore(cfg *interaction.ServerConfig, store *persistence.RegistryStore, reset bool, logger *slog.Logger) error {
	if reset {
		logger.Info("clearing persisted registry", "path", store.Path())
		if err := store.Clear(); err != nil {
			return err
		}
	}

	persisted, err := store.Load()
	if err != nil {
		return err
	}
	if persisted != nil {
		cfg.Registry = persisted
		logger.Info("registry restored", "path", store.Path(), "sections", len(persisted))
	}

	cfg.OnRegistryChange = func(registry map[string]map[string]string) {
		if err := store.Save(registry); err != nil {
			logger.Warn("failed to save registry", "path", store.Path(), "error", err)
		}
	}
	return nil
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
