package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultODCPort, cfg.ODC.Port)
	assert.Equal(t, DefaultECPPort, cfg.ECP.Port)
	assert.Equal(t, DefaultTimeout, cfg.Defaults.ODC.Timeout.Duration())
	assert.Equal(t, DefaultObserveTimeout, cfg.Defaults.ODC.ObserveTimeout.Duration())
	assert.Equal(t, time.Duration(0), cfg.Defaults.ECP.KeyPressDelay.Duration())
	assert.ErrorIs(t, cfg.RequireDevice(), ErrDeviceRequired)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rta.yaml")
	data := []byte(`
device:
  ip: 192.168.1.20
  password: secret
channel:
  id: dev
defaults:
  ecp:
    keyPressDelay: 300
  odc:
    observeTimeout: 2500
odc:
  port: 9100
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", cfg.Device.IP)
	assert.Equal(t, "secret", cfg.Device.Password)
	assert.Equal(t, "jpg", cfg.Device.ScreenshotFormat, "kept from defaults")
	assert.Equal(t, "dev", cfg.Channel.ID)
	assert.Equal(t, 300*time.Millisecond, cfg.Defaults.ECP.KeyPressDelay.Duration())
	assert.Equal(t, 2500*time.Millisecond, cfg.Defaults.ODC.ObserveTimeout.Duration())
	assert.Equal(t, DefaultTimeout, cfg.Defaults.ODC.Timeout.Duration(), "kept from defaults")
	assert.Equal(t, "192.168.1.20:9100", cfg.ODCAddress())
	assert.Equal(t, DefaultECPPort, cfg.ECP.Port)
	assert.NoError(t, cfg.RequireDevice())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"BadFormat", "device:\n  screenshotFormat: gif\n", ErrInvalidScreenshotFormat},
		{"BadPort", "ecp:\n  port: 70000\n", ErrInvalidPort},
		{"ZeroPort", "odc:\n  port: 0\n", ErrInvalidPort},
		{"NegativeDelay", "defaults:\n  ecp:\n    keyPressDelay: -1\n", ErrNegativeDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Parse([]byte("device: [unclosed"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Device.IP = "10.0.0.5"
	cfg.Channel.ID = "12345"

	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
