package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the tracegc runtime configuration.
//
// This structure captures the static configuration of the collector runtime:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics server settings
//   - Object table sizing (capacity, permanent pool)
//   - Collector tuning (workers, clustering, incremental purge)
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TRACEGC_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Debug contains the debug HTTP server configuration (pprof, live
	// collector statistics)
	Debug DebugConfig `mapstructure:"debug" yaml:"debug"`

	// Table configures the object table
	Table TableConfig `mapstructure:"table" yaml:"table"`

	// GC configures the collector
	GC GCConfig `mapstructure:"gc" yaml:"gc"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, every collection cycle exports a span tree (cycle, mark,
// gather, purge ticks) to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
// When enabled, CPU and memory profiles are continuously sent to a Pyroscope
// server for flame graph visualization. Mark-phase hot spots show up here.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// DebugConfig configures the debug HTTP server. It exposes pprof handlers
// and live collector statistics for inspection during long-running
// simulations.
type DebugConfig struct {
	// Enabled controls whether the debug server is started
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the debug endpoints
	// Default: 6060
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TableConfig configures the object table.
type TableConfig struct {
	// Capacity is the fixed maximum number of objects the table can hold.
	// Allocation beyond capacity fails; it never grows.
	// Default: 2097152 (2M objects)
	Capacity int `mapstructure:"capacity" validate:"omitempty,min=1" yaml:"capacity"`
}

// GCConfig configures the collector. Every field maps onto a tuning knob of
// the gc package; zero values take the collector's defaults.
type GCConfig struct {
	// Workers is the number of goroutines used for the parallel mark and
	// gather phases. 0 = number of CPUs, 1 disables parallelism.
	Workers int `mapstructure:"workers" validate:"omitempty,min=0" yaml:"workers"`

	// MinObjectsPerWorker is the minimum shard size before an extra worker
	// is worth its scheduling cost
	// Default: 512
	MinObjectsPerWorker int `mapstructure:"min_objects_per_worker" validate:"omitempty,min=1" yaml:"min_objects_per_worker"`

	// Clustering controls whether cluster compression is honored
	// Default: true
	Clustering bool `mapstructure:"clustering" yaml:"clustering"`

	// MultithreadedDestruction allows physical destruction on a worker
	// goroutine for classes that declare it safe
	// Default: true
	MultithreadedDestruction bool `mapstructure:"multithreaded_destruction" yaml:"multithreaded_destruction"`

	// AllowEliminatingReferences controls whether strong references to
	// pending-kill objects are nulled in place during the mark phase
	// Default: true
	AllowEliminatingReferences bool `mapstructure:"allow_eliminating_references" yaml:"allow_eliminating_references"`

	// MaxSkippedCollections bounds how many opportunistic collection
	// attempts may be skipped under contention before one is forced
	// Default: 5
	MaxSkippedCollections int `mapstructure:"max_skipped_collections" validate:"omitempty,min=1" yaml:"max_skipped_collections"`

	// TimeLimit is the soft budget for one incremental purge tick
	// Default: 2ms
	TimeLimit time.Duration `mapstructure:"time_limit" yaml:"time_limit"`

	// TimeCheckStride is how many objects a time-sliced purge step
	// processes between deadline checks
	// Default: 64
	TimeCheckStride int `mapstructure:"time_check_stride" validate:"omitempty,min=1" yaml:"time_check_stride"`

	// FinishDestroyWarnAfter is the number of readiness polls after which
	// objects still not ready for FinishDestroy are logged as a warning
	// Default: 10
	FinishDestroyWarnAfter int `mapstructure:"finish_destroy_warn_after" validate:"omitempty,min=1" yaml:"finish_destroy_warn_after"`

	// FinishDestroyFatalAfter is the number of zero-progress poll passes
	// after which the purge treats a stuck object as fatal
	// Default: 1000
	FinishDestroyFatalAfter int `mapstructure:"finish_destroy_fatal_after" validate:"omitempty,min=1" yaml:"finish_destroy_fatal_after"`

	// Interval is how often the runtime triggers an opportunistic
	// collection in the run loop
	// Default: 1s
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TRACEGC_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: User-friendly error with instructions if config not found
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			// No config anywhere: run on defaults rather than failing, the
			// collector has sensible defaults for everything
			return GetDefaultConfig(), nil
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  tracegc config init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use TRACEGC_ prefix and underscores
	// Example: TRACEGC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("TRACEGC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/tracegc/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "2ms", "30s", "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "2ms", "30s", "5m"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tracegc")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "tracegc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
