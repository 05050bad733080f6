package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.NotEmpty(t, cfg.Telemetry.Profiling.ProfileTypes)

	assert.Equal(t, DefaultTableCapacity, cfg.Table.Capacity)

	assert.Equal(t, 512, cfg.GC.MinObjectsPerWorker)
	assert.Equal(t, 5, cfg.GC.MaxSkippedCollections)
	assert.Equal(t, 2*time.Millisecond, cfg.GC.TimeLimit)
	assert.Equal(t, 64, cfg.GC.TimeCheckStride)
	assert.Equal(t, 10, cfg.GC.FinishDestroyWarnAfter)
	assert.Equal(t, 1000, cfg.GC.FinishDestroyFatalAfter)
	assert.Equal(t, time.Second, cfg.GC.Interval)

	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		Table:   TableConfig{Capacity: 100},
		GC: GCConfig{
			Workers:   3,
			TimeLimit: 10 * time.Millisecond,
		},
	}
	ApplyDefaults(cfg)

	// Level normalized, not replaced
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 100, cfg.Table.Capacity)
	assert.Equal(t, 3, cfg.GC.Workers)
	assert.Equal(t, 10*time.Millisecond, cfg.GC.TimeLimit)
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, 0, cfg.Metrics.Port)

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestApplyDefaults_DebugPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, 0, cfg.Debug.Port)

	cfg = &Config{Debug: DebugConfig{Enabled: true}}
	ApplyDefaults(cfg)
	assert.Equal(t, 6060, cfg.Debug.Port)
}

func TestApplyDefaults_WorkersStayZero(t *testing.T) {
	// 0 means "one per CPU", resolved by the collector at runtime
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, 0, cfg.GC.Workers)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.True(t, cfg.GC.Clustering)
	assert.True(t, cfg.GC.MultithreadedDestruction)
	assert.True(t, cfg.GC.AllowEliminatingReferences)
	assert.NoError(t, Validate(cfg))
}
