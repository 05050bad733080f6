// Package gc implements a parallel, incremental tracing garbage collector
// for a fixed-capacity object table.
//
// A collection cycle runs in three phases:
//
//  1. Mark: the table is sliced into per-worker shards; every object is
//     classified as kept or initially unreachable, then the reference
//     streams of kept objects are replayed, clearing the unreachable flag on
//     every object a chain of strong references from the root set can reach.
//     Clusters are marked as single units.
//  2. Gather: a second sharded pass collects every record still flagged
//     unreachable into an ordered list, dissolving unreachable clusters
//     along the way.
//  3. Purge: the unreachable list is destroyed incrementally — unhash and
//     BeginDestroy in order, poll ReadyForFinishDestroy across ticks, then
//     physically free slots, optionally on a worker goroutine for classes
//     that allow it. The purge can be time-sliced across frames; mark and
//     gather cannot be interrupted.
//
// The coordinator arbitrates between full collections and concurrent
// readers of the object table: CollectGarbage blocks until it can run,
// TryCollectGarbage skips the cycle under contention until a bounded number
// of skips forces it through.
//
// Invariant violations (corrupt references, double dissolution, a rooted
// object marked garbage) panic with full object context; there is no
// recovery path mid-cycle because the table may be half-marked.
package gc
