package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for collection spans. Collector-wide keys use the
// "gc." prefix; object-level keys use "object.".
const (
	// ========================================================================
	// Cycle attributes
	// ========================================================================
	AttrCycleID    = "gc.cycle_id"
	AttrFullPurge  = "gc.full_purge"
	AttrPhase      = "gc.phase"
	AttrWorkers    = "gc.workers"
	AttrDurationMs = "gc.duration_ms"

	// ========================================================================
	// Phase result attributes
	// ========================================================================
	AttrObjects        = "gc.objects"
	AttrKept           = "gc.kept"
	AttrUnreachable    = "gc.unreachable"
	AttrDestroyed      = "gc.destroyed"
	AttrBacklog        = "gc.backlog"
	AttrRefsEliminated = "gc.refs_eliminated"

	// ========================================================================
	// Cluster attributes
	// ========================================================================
	AttrClusterIndex   = "gc.cluster_index"
	AttrClusterRoot    = "gc.cluster_root"
	AttrClusterMembers = "gc.cluster_members"
	AttrDissolved      = "gc.clusters_dissolved"

	// ========================================================================
	// Object attributes
	// ========================================================================
	AttrObjectIndex = "object.index"
	AttrObjectClass = "object.class"
)

// Span names.
// Format: gc.<operation> for collector spans.
const (
	SpanCollection = "gc.collect"
	SpanMark       = "gc.mark"
	SpanGather     = "gc.gather"
	SpanPurgeTick  = "gc.purge_tick"
	SpanVerify     = "gc.verify_clusters"
)

// CycleID returns an attribute for the collection cycle identifier
func CycleID(id string) attribute.KeyValue {
	return attribute.String(AttrCycleID, id)
}

// FullPurge returns an attribute for the full-purge request flag
func FullPurge(full bool) attribute.KeyValue {
	return attribute.Bool(AttrFullPurge, full)
}

// Phase returns an attribute for the collection phase name
func Phase(name string) attribute.KeyValue {
	return attribute.String(AttrPhase, name)
}

// Workers returns an attribute for the parallel worker count
func Workers(n int) attribute.KeyValue {
	return attribute.Int(AttrWorkers, n)
}

// Objects returns an attribute for an object count
func Objects(n int) attribute.KeyValue {
	return attribute.Int(AttrObjects, n)
}

// Kept returns an attribute for the kept-object count
func Kept(n int) attribute.KeyValue {
	return attribute.Int(AttrKept, n)
}

// Unreachable returns an attribute for the unreachable-object count
func Unreachable(n int) attribute.KeyValue {
	return attribute.Int(AttrUnreachable, n)
}

// Destroyed returns an attribute for the destroyed-object count
func Destroyed(n int) attribute.KeyValue {
	return attribute.Int(AttrDestroyed, n)
}

// Backlog returns an attribute for the purge backlog size
func Backlog(n int) attribute.KeyValue {
	return attribute.Int(AttrBacklog, n)
}

// RefsEliminated returns an attribute for the nulled-reference count
func RefsEliminated(n int) attribute.KeyValue {
	return attribute.Int(AttrRefsEliminated, n)
}

// ClusterIndex returns an attribute for a cluster slot
func ClusterIndex(slot int32) attribute.KeyValue {
	return attribute.Int64(AttrClusterIndex, int64(slot))
}

// ClusterRoot returns an attribute for a cluster root object index
func ClusterRoot(idx int32) attribute.KeyValue {
	return attribute.Int64(AttrClusterRoot, int64(idx))
}

// ClusterMembers returns an attribute for a cluster member count
func ClusterMembers(n int) attribute.KeyValue {
	return attribute.Int(AttrClusterMembers, n)
}

// ClustersDissolved returns an attribute for the dissolved-cluster count
func ClustersDissolved(n int) attribute.KeyValue {
	return attribute.Int(AttrDissolved, n)
}

// ObjectIndex returns an attribute for an object table index
func ObjectIndex(idx int32) attribute.KeyValue {
	return attribute.Int64(AttrObjectIndex, int64(idx))
}

// ObjectClass returns an attribute for an object class name
func ObjectClass(name string) attribute.KeyValue {
	return attribute.String(AttrObjectClass, name)
}

// DurationMs returns an attribute for a duration in milliseconds
func DurationMs(d time.Duration) attribute.KeyValue {
	return attribute.Float64(AttrDurationMs, float64(d.Nanoseconds())/1e6)
}

// StartCollectionSpan starts the root span for one collection cycle.
func StartCollectionSpan(ctx context.Context, cycleID string, fullPurge bool, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		CycleID(cycleID),
		FullPurge(fullPurge),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanCollection, trace.WithAttributes(allAttrs...))
}

// StartPhaseSpan starts a child span for one collection phase.
func StartPhaseSpan(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Phase(phase),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "gc."+phase, trace.WithAttributes(allAttrs...))
}

// EndPhase records a completed phase as an event on the cycle span, with its
// result count and wall time.
func EndPhase(ctx context.Context, phase string, count int, d time.Duration) {
	AddEvent(ctx, "gc."+phase,
		Phase(phase),
		Objects(count),
		DurationMs(d),
	)
}
