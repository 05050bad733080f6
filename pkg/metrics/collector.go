package metrics

import "time"

// CollectorMetrics records what a garbage collection cycle did. A nil
// CollectorMetrics is valid everywhere and means zero overhead; use the
// package-level Observe helpers to avoid nil checks at call sites.
type CollectorMetrics interface {
	// IncCollections counts a completed collection cycle.
	IncCollections(full bool)

	// IncSkipped counts a TryCollectGarbage attempt skipped under
	// contention.
	IncSkipped()

	// ObserveMarkPhase records a completed mark phase.
	ObserveMarkPhase(objects int, duration time.Duration)

	// ObserveGatherPhase records a completed unreachable-gather phase.
	ObserveGatherPhase(unreachable, clusterMembers int, duration time.Duration)

	// ObservePurgeTick records one incremental purge slice.
	ObservePurgeTick(destroyed int, duration time.Duration)

	// SetPurgeBacklog records how many objects still await destruction.
	SetPurgeBacklog(pending int)

	// AddClustersDissolved counts dissolved clusters.
	AddClustersDissolved(n int)
}

// NewCollectorMetrics creates a Prometheus-backed CollectorMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); a nil
// result is safe to pass everywhere a CollectorMetrics is accepted.
func NewCollectorMetrics() CollectorMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCollectorMetrics()
}

// newPrometheusCollectorMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle while keeping the API clean.
var newPrometheusCollectorMetrics func() CollectorMetrics

// RegisterCollectorMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterCollectorMetricsConstructor(constructor func() CollectorMetrics) {
	newPrometheusCollectorMetrics = constructor
}

// ObserveMarkPhase records a mark phase if m is non-nil.
func ObserveMarkPhase(m CollectorMetrics, objects int, duration time.Duration) {
	if m != nil {
		m.ObserveMarkPhase(objects, duration)
	}
}

// ObserveGatherPhase records a gather phase if m is non-nil.
func ObserveGatherPhase(m CollectorMetrics, unreachable, clusterMembers int, duration time.Duration) {
	if m != nil {
		m.ObserveGatherPhase(unreachable, clusterMembers, duration)
	}
}

// ObservePurgeTick records a purge slice if m is non-nil.
func ObservePurgeTick(m CollectorMetrics, destroyed int, duration time.Duration) {
	if m != nil {
		m.ObservePurgeTick(destroyed, duration)
	}
}

// SetPurgeBacklog records the purge backlog if m is non-nil.
func SetPurgeBacklog(m CollectorMetrics, pending int) {
	if m != nil {
		m.SetPurgeBacklog(pending)
	}
}
