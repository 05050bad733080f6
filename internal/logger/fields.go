package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so collection cycles
// can be correlated and queried in log aggregation.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for cycle correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for phase tracking

	// ========================================================================
	// Collection Cycle
	// ========================================================================
	KeyCycleID = "cycle_id" // Unique ID of the collection cycle
	KeyPhase   = "phase"    // Collector phase: mark, gather, purge
	KeyWorker  = "worker"   // Worker index within a parallel phase

	// ========================================================================
	// Object Identity
	// ========================================================================
	KeyObjectIndex  = "object_index"  // Dense object table index
	KeyClass        = "class"         // Class name of the object
	KeyClusterIndex = "cluster_index" // Cluster slot index (0 = none)
	KeyClusterRoot  = "cluster_root"  // Object index of a cluster root

	// ========================================================================
	// Phase Results
	// ========================================================================
	KeyObjects        = "objects"         // Objects considered in a pass
	KeyKept           = "kept"            // Objects kept by flags
	KeyUnreachable    = "unreachable"     // Unreachable objects found
	KeyClusterMembers = "cluster_members" // Unreachable contributions from dissolved clusters
	KeyDissolved      = "dissolved"       // Clusters dissolved
	KeyDestroyed      = "destroyed"       // Objects physically freed
	KeyDeferred       = "deferred"        // Objects deferred to a later tick
	KeyPending        = "pending"         // Objects still pending destruction

	// ========================================================================
	// Scheduling
	// ========================================================================
	KeyWorkers    = "workers"     // Worker count for a parallel phase
	KeyShardStart = "shard_start" // First index of a worker's shard
	KeyShardEnd   = "shard_end"   // One past the last index of a worker's shard
	KeyTimeLimit  = "time_limit"  // Soft time budget for an incremental tick
	KeySkipped    = "skipped"     // Consecutive skipped collection attempts

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Poll attempt number
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// CycleID returns a slog.Attr for a collection cycle ID
func CycleID(id string) slog.Attr {
	return slog.String(KeyCycleID, id)
}

// Phase returns a slog.Attr for the collector phase
func Phase(name string) slog.Attr {
	return slog.String(KeyPhase, name)
}

// Worker returns a slog.Attr for a worker index
func Worker(n int) slog.Attr {
	return slog.Int(KeyWorker, n)
}

// ObjectIndex returns a slog.Attr for an object table index
func ObjectIndex(idx int32) slog.Attr {
	return slog.Int(KeyObjectIndex, int(idx))
}

// Class returns a slog.Attr for an object class name
func Class(name string) slog.Attr {
	return slog.String(KeyClass, name)
}

// ClusterIndex returns a slog.Attr for a cluster slot index
func ClusterIndex(idx int32) slog.Attr {
	return slog.Int(KeyClusterIndex, int(idx))
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
