// Command rta drives a Roku device for test automation.
//
// It talks to the on-device component for key path reads and writes, field
// observation, function calls and the registry, and to the External Control
// Protocol for remote key presses and channel launches.
//
// Usage:
//
//	rta [flags] <command> [args...]
//	rta [flags] shell
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-device string          Device IP address (overrides the config file)
//	-odc-port int           On-device component port (default 9000)
//	-ecp-port int           External Control Protocol port (default 8060)
//	-channel string         Channel id launched by "launch" without arguments
//	-timeout duration       Request timeout (default 10s)
//	-observe-timeout dur    Default observe timeout (default 5s)
//	-key-delay duration     Wait after each key press
//	-dial-attempts int      Connection attempts before giving up (default 3)
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-protocol-log string    File to write the CBOR protocol log to
//
// Examples:
//
//	# Read a value from the global node
//	rta -device 192.168.1.20 get global AuthManager.isLoggedIn
//
//	# Wait for a field to become true
//	rta -device 192.168.1.20 observe global AuthManager.isLoggedIn true
//
//	# Interactive session with a protocol log
//	rta -config rta.yaml -protocol-log session.log shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/georgejecook/roku-test-automation/cmd/rta/commands"
	"github.com/georgejecook/roku-test-automation/cmd/rta/interactive"
	"github.com/georgejecook/roku-test-automation/pkg/config"
	"github.com/georgejecook/roku-test-automation/pkg/connection"
	"github.com/georgejecook/roku-test-automation/pkg/ecp"
	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/transport"
)

// Flags holds the command line settings. Zero values leave the config file
// untouched.
type Flags struct {
	ConfigFile     string
	Device         string
	ODCPort        int
	ECPPort        int
	Channel        string
	Timeout        time.Duration
	ObserveTimeout time.Duration
	KeyDelay       time.Duration
	DialAttempts   int
	LogLevel       string
	ProtocolLog    string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Device, "device", "", "Device IP address (overrides the config file)")
	flag.IntVar(&flags.ODCPort, "odc-port", 0, "On-device component port (default 9000)")
	flag.IntVar(&flags.ECPPort, "ecp-port", 0, "External Control Protocol port (default 8060)")
	flag.StringVar(&flags.Channel, "channel", "", "Channel id launched by \"launch\" without arguments")
	flag.DurationVar(&flags.Timeout, "timeout", 0, "Request timeout (default 10s)")
	flag.DurationVar(&flags.ObserveTimeout, "observe-timeout", 0, "Default observe timeout (default 5s)")
	flag.DurationVar(&flags.KeyDelay, "key-delay", 0, "Wait after each key press")
	flag.IntVar(&flags.DialAttempts, "dial-attempts", 3, "Connection attempts before giving up")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "File to write the CBOR protocol log to")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger := setupLogging(flags.LogLevel)

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var protoLogger log.Logger
	if flags.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(flags.ProtocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		protoLogger = log.NewMultiLogger(fileLogger, log.NewSlogAdapter(logger))
	} else if flags.LogLevel == "debug" {
		protoLogger = log.NewSlogAdapter(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Debug("received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	name, args := flag.Arg(0), flag.Args()[1:]
	shell := name == "shell"

	dev := newDevice(cfg, protoLogger, logger, shell)
	defer dev.Close()

	env := &commands.Env{
		Out:            os.Stdout,
		ODC:            dev.ODC,
		ECP:            dev.ECP,
		ObserveTimeout: cfg.Defaults.ODC.ObserveTimeout.Duration(),
	}

	if shell {
		sh, err := interactive.New(env, dev.Status)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(sh.Stdout(), "Roku test automation shell (device %s)\n", cfg.Device.IP)
		sh.Run(ctx, cancel)
		return
	}

	if err := commands.Run(ctx, env, name, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, commands.ErrUnknownCommand) || errors.Is(err, commands.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: rta [flags] <command> [args...]")
	fmt.Fprintln(os.Stderr, "       rta [flags] shell")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	for _, c := range commands.All() {
		fmt.Fprintf(os.Stderr, "  %-58s %s\n", c.Usage(), c.Summary)
	}
	fmt.Fprintf(os.Stderr, "  %-58s %s\n", "shell", "Start an interactive session")
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
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

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.Device != "" {
		cfg.Device.IP = f.Device
	}
	if f.ODCPort != 0 {
		cfg.ODC.Port = f.ODCPort
	}
	if f.ECPPort != 0 {
		cfg.ECP.Port = f.ECPPort
	}
	if f.Channel != "" {
		cfg.Channel.ID = f.Channel
	}
	if f.Timeout != 0 {
		cfg.Defaults.ODC.Timeout = config.MillisOf(f.Timeout)
	}
	if f.ObserveTimeout != 0 {
		cfg.Defaults.ODC.ObserveTimeout = config.MillisOf(f.ObserveTimeout)
	}
	if f.KeyDelay != 0 {
		cfg.Defaults.ECP.KeyPressDelay = config.MillisOf(f.KeyDelay)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireDevice(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// device opens its connections on first use.
type device struct {
	cfg         *config.Config
	protoLogger log.Logger
	logger      *slog.Logger
	reconnect   bool

	mu      sync.Mutex
	session *connection.Session
	remote  *ecp.Client
}

func newDevice(cfg *config.Config, protoLogger log.Logger, logger *slog.Logger, reconnect bool) *device {
	return &device{cfg: cfg, protoLogger: protoLogger, logger: logger, reconnect: reconnect}
}

// ODC returns the on-device component client, connecting if needed.
func (d *device) ODC(ctx context.Context) (*interaction.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil && d.session.State() == connection.StateDisconnected {
		_ = d.session.Close()
		d.session = nil
	}
	if d.session == nil {
		session, err := connection.Open(ctx, connection.SessionConfig{
			Address:   d.cfg.ODCAddress(),
			Transport: transport.Config{Logger: d.protoLogger},
			Client: interaction.ClientConfig{
				Timeout:        d.cfg.Defaults.ODC.Timeout.Duration(),
				ObserveTimeout: d.cfg.Defaults.ODC.ObserveTimeout.Duration(),
			},
			MaxAttempts:   flags.DialAttempts,
			AutoReconnect: d.reconnect,
			Logger:        d.logger,
			OnStateChange: func(old, state connection.State) {
				d.logger.Debug("connection state", "old", old, "new", state)
			},
		})
		if err != nil {
			return nil, err
		}
		d.session = session
	}
	return d.session.Client()
}

// ECP returns the remote control client.
func (d *device) ECP() (*ecp.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.remote == nil {
		remote, err := ecp.New(ecp.Config{
			Host:          d.cfg.Device.IP,
			Port:          d.cfg.ECP.Port,
			ChannelID:     d.cfg.Channel.ID,
			KeyPressDelay: d.cfg.Defaults.ECP.KeyPressDelay.Duration(),
			Logger:        d.logger,
		})
		if err != nil {
			return nil, err
		}
		d.remote = remote
	}
	return d.remote, nil
}

// Status describes the on-device component connection.
func (d *device) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return fmt.Sprintf("device %s: not connected", d.cfg.ODCAddress())
	}
	return fmt.Sprintf("device %s: %s", d.cfg.ODCAddress(), d.session.State())
}

func (d *device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		_ = d.session.Close()
		d.session = nil
	}
}
