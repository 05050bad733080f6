package gc

import "time"

// CycleStats summarizes one collection cycle. A snapshot is retrievable
// through Collector.LastCycle after the mark and gather phases complete;
// purge counters keep updating until the purge finishes.
type CycleStats struct {
	// CycleID uniquely identifies the cycle in logs and traces.
	CycleID string

	// Started is when the cycle acquired the GC lock.
	Started time.Time

	// FullPurge records whether the cycle was asked to purge to completion.
	FullPurge bool

	// Objects is how many table slots the mark phase considered.
	Objects int

	// Kept is how many objects the seed pass kept by flags or the
	// expensive keep check.
	Kept int

	// Unreachable is the length of the gathered unreachable list,
	// including cluster member contributions.
	Unreachable int

	// ClusterMembers is the subset of Unreachable contributed by
	// dissolved clusters, counted separately for diagnostics.
	ClusterMembers int

	// ClustersDissolved counts clusters dissolved during the cycle, both
	// for garbage roots/members and for unreachability.
	ClustersDissolved int

	// RefsEliminated counts strong references to pending-kill objects
	// nulled during the walk.
	RefsEliminated int

	// Destroyed counts objects physically freed so far.
	Destroyed int

	// MarkDuration, GatherDuration and PurgeDuration are per-phase wall
	// times. PurgeDuration accumulates across incremental ticks.
	MarkDuration   time.Duration
	GatherDuration time.Duration
	PurgeDuration  time.Duration
}
