package config

import (
	"strings"
	"time"
)

// DefaultTableCapacity is the default fixed size of the object table.
const DefaultTableCapacity = 2 * 1024 * 1024

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyDebugDefaults(&cfg.Debug)
	applyTableDefaults(&cfg.Table)
	applyGCDefaults(&cfg.GC)
	applyShutdownTimeoutDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyDebugDefaults sets debug server defaults.
func applyDebugDefaults(cfg *DebugConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 6060
	}
}

// applyTableDefaults sets object table defaults.
func applyTableDefaults(cfg *TableConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultTableCapacity
	}
}

// applyGCDefaults sets collector defaults.
//
// Workers stays 0 when unspecified: the collector interprets 0 as "one per
// CPU" at runtime, which keeps saved configs portable across machines.
func applyGCDefaults(cfg *GCConfig) {
	if cfg.MinObjectsPerWorker == 0 {
		cfg.MinObjectsPerWorker = 512
	}
	if cfg.MaxSkippedCollections == 0 {
		cfg.MaxSkippedCollections = 5
	}
	if cfg.TimeLimit == 0 {
		cfg.TimeLimit = 2 * time.Millisecond
	}
	if cfg.TimeCheckStride == 0 {
		cfg.TimeCheckStride = 64
	}
	if cfg.FinishDestroyWarnAfter == 0 {
		cfg.FinishDestroyWarnAfter = 10
	}
	if cfg.FinishDestroyFatalAfter == 0 {
		cfg.FinishDestroyFatalAfter = 1000
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		GC: GCConfig{
			Clustering:                 true,
			MultithreadedDestruction:   true,
			AllowEliminatingReferences: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
