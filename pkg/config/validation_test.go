package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestValidate_NilConfig(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Format")
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SampleRate")
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Metrics.Port")
}

func TestValidate_PortCollision(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 6060
	cfg.Debug.Enabled = true
	cfg.Debug.Port = 6060

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot share port")
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ShutdownTimeout = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ShutdownTimeout")
}
