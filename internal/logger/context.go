package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds cycle-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	CycleID   string    // Collection cycle ID
	Phase     string    // Collector phase (mark, gather, purge)
	Worker    int       // Worker index, -1 when not inside a parallel phase
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a collection cycle
func NewLogContext(cycleID string) *LogContext {
	return &LogContext{
		CycleID:   cycleID,
		Worker:    -1,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithPhase returns a copy with the phase set
func (lc *LogContext) WithPhase(phase string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Phase = phase
	}
	return clone
}

// WithWorker returns a copy with the worker index set
func (lc *LogContext) WithWorker(worker int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Worker = worker
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
