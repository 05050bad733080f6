package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/internal/telemetry"
	"github.com/marmos91/tracegc/pkg/config"
	"github.com/marmos91/tracegc/pkg/gc"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// InitTelemetry initializes tracing and profiling from configuration and
// returns a combined shutdown function.
func InitTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context), error) {
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tracegc",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "tracegc",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	return func(ctx context.Context) {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}, nil
}

// CollectorConfig converts the file configuration into collector tuning.
func CollectorConfig(cfg *config.Config) gc.Config {
	return gc.Config{
		Workers:                    cfg.GC.Workers,
		MinObjectsPerWorker:        cfg.GC.MinObjectsPerWorker,
		ClusteringEnabled:          cfg.GC.Clustering,
		MultithreadedDestruction:   cfg.GC.MultithreadedDestruction,
		AllowEliminatingReferences: cfg.GC.AllowEliminatingReferences,
		MaxSkippedCollections:      cfg.GC.MaxSkippedCollections,
		TimeLimit:                  cfg.GC.TimeLimit,
		TimeCheckStride:            cfg.GC.TimeCheckStride,
		FinishDestroyWarnAfter:     cfg.GC.FinishDestroyWarnAfter,
		FinishDestroyFatalAfter:    cfg.GC.FinishDestroyFatalAfter,
	}
}
