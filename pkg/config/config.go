package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default ports and timeouts.
const (
	DefaultODCPort        = 9000
	DefaultECPPort        = 8060
	DefaultTimeout        = 10 * time.Second
	DefaultObserveTimeout = 5 * time.Second
)

// Validation errors.
var (
	ErrInvalidPort             = errors.New("invalid port")
	ErrInvalidScreenshotFormat = errors.New("invalid screenshot format")
	ErrNegativeDuration        = errors.New("duration must not be negative")
	ErrDeviceRequired          = errors.New("device ip is required")
)

// Millis is a duration written as whole milliseconds.
type Millis int64

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// MillisOf converts d to Millis, truncating.
func MillisOf(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

// Config is the complete configuration.
type Config struct {
	Device   Device   `yaml:"device"`
	Channel  Channel  `yaml:"channel"`
	Defaults Defaults `yaml:"defaults"`
	ODC      Port     `yaml:"odc"`
	ECP      Port     `yaml:"ecp"`
}

// Device identifies the device under test.
type Device struct {
	IP               string `yaml:"ip"`
	Password         string `yaml:"password,omitempty"`
	ScreenshotFormat string `yaml:"screenshotFormat,omitempty"`
}

// Channel identifies the channel under test.
type Channel struct {
	ID string `yaml:"id,omitempty"`
}

// Defaults holds per-protocol default timings.
type Defaults struct {
	ECP ECPDefaults `yaml:"ecp"`
	ODC ODCDefaults `yaml:"odc"`
}

// ECPDefaults holds remote input timings.
type ECPDefaults struct {
	KeyPressDelay Millis `yaml:"keyPressDelay"`
}

// ODCDefaults holds on-device component timings.
type ODCDefaults struct {
	Timeout        Millis `yaml:"timeout"`
	ObserveTimeout Millis `yaml:"observeTimeout"`
}

// Port is a service port setting.
type Port struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device: Device{ScreenshotFormat: "jpg"},
		Defaults: Defaults{
			ODC: ODCDefaults{
				Timeout:        MillisOf(DefaultTimeout),
				ObserveTimeout: MillisOf(DefaultObserveTimeout),
			},
		},
		ODC: Port{Port: DefaultODCPort},
		ECP: Port{Port: DefaultECPPort},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. A missing device ip is allowed here;
// use RequireDevice where one is needed.
func (c *Config) Validate() error {
	var errs []error

	switch c.Device.ScreenshotFormat {
	case "", "jpg", "png":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidScreenshotFormat, c.Device.ScreenshotFormat))
	}
	for name, p := range map[string]int{"odc.port": c.ODC.Port, "ecp.port": c.ECP.Port} {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("%w: %s = %d", ErrInvalidPort, name, p))
		}
	}
	for name, m := range map[string]Millis{
		"defaults.ecp.keyPressDelay":  c.Defaults.ECP.KeyPressDelay,
		"defaults.odc.timeout":        c.Defaults.ODC.Timeout,
		"defaults.odc.observeTimeout": c.Defaults.ODC.ObserveTimeout,
	} {
		if m < 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %d", ErrNegativeDuration, name, m))
		}
	}
	return errors.Join(errs...)
}

// RequireDevice returns ErrDeviceRequired when no device ip is set.
func (c *Config) RequireDevice() error {
	if c.Device.IP == "" {
		return ErrDeviceRequired
	}
	return nil
}

// ODCAddress returns the on-device component address.
func (c *Config) ODCAddress() string {
	return net.JoinHostPort(c.Device.IP, strconv.Itoa(c.ODC.Port))
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
