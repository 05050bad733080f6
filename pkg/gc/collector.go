package gc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/internal/telemetry"
	"github.com/marmos91/tracegc/pkg/cluster"
	"github.com/marmos91/tracegc/pkg/metrics"
	"github.com/marmos91/tracegc/pkg/objtable"
)

// Collector drives garbage collection over one object table. All entry
// points are safe to call from any goroutine; at most one collection cycle
// runs at a time.
type Collector struct {
	store    objtable.Store
	clusters *cluster.Store
	cfg      Config
	metrics  metrics.CollectorMetrics
	coord    *Coordinator

	purge purgeRun

	// skipped counts consecutive TryCollectGarbage attempts skipped under
	// contention; reset on every successful acquisition.
	skipped atomic.Int32

	statsMu sync.Mutex
	last    CycleStats
}

// New creates a collector over store. clusters may be nil when clustering is
// disabled. m may be nil to disable metrics.
func New(store objtable.Store, clusters *cluster.Store, cfg Config, m metrics.CollectorMetrics) *Collector {
	c := &Collector{
		store:    store,
		clusters: clusters,
		cfg:      cfg.normalized(),
		metrics:  m,
		coord:    NewCoordinator(),
	}
	if c.cfg.ClusteringEnabled && clusters == nil {
		c.clusters = cluster.NewStore(store)
	}
	c.purge.init(c)
	return c
}

// Coordinator returns the coordinator so readers (e.g. an async loader) can
// open table-reader sections.
func (c *Collector) Coordinator() *Coordinator {
	return c.coord
}

// Clusters returns the cluster store, or nil when clustering is disabled.
func (c *Collector) Clusters() *cluster.Store {
	return c.clusters
}

// NotifyLoaded marks the object at idx as fully loaded: its async-loading
// flag is cleared and every cluster's pending-load verification exemption for
// it is lifted.
func (c *Collector) NotifyLoaded(idx int32) {
	if nl, ok := c.store.(interface{ NotifyLoaded(idx int32) }); ok {
		nl.NotifyLoaded(idx)
	}
	if c.clusters != nil {
		c.clusters.NotifyLoaded(idx)
	}
}

// LastCycle returns a snapshot of the most recent cycle's statistics.
func (c *Collector) LastCycle() CycleStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.last
}

// CollectGarbage runs a full collection cycle: mark, gather, and — when
// fullPurge is set — a purge driven to completion before returning. With
// fullPurge false the unreachable set is left for IncrementalPurgeTick.
// Blocks until the exclusive GC lock and the table-reader gate are acquired.
//
// Objects carrying keepFlags are treated as roots for this cycle, in
// addition to the root set and don't-collect flags.
func (c *Collector) CollectGarbage(ctx context.Context, keepFlags objtable.Flags, fullPurge bool) {
	c.coord.AcquireExclusive()
	defer c.coord.ReleaseExclusive()
	c.skipped.Store(0)
	c.collect(ctx, keepFlags, fullPurge, false)
}

// TryCollectGarbage attempts a collection cycle without blocking. It returns
// false when the exclusive lock or the reader gate is contended — unless the
// number of consecutive skipped attempts has exceeded the configured bound,
// in which case it blocks and forces the collection.
func (c *Collector) TryCollectGarbage(ctx context.Context, keepFlags objtable.Flags, fullPurge bool) bool {
	if int(c.skipped.Load()) >= c.cfg.MaxSkippedCollections {
		logger.Warn("garbage collection forced after repeated skips",
			logger.KeySkipped, c.skipped.Load())
		c.CollectGarbage(ctx, keepFlags, fullPurge)
		return true
	}

	if !c.coord.TryAcquireExclusive() {
		c.recordSkip()
		return false
	}
	if !c.coord.tryBeginMark() {
		c.coord.ReleaseExclusive()
		c.recordSkip()
		return false
	}
	defer c.coord.ReleaseExclusive()
	c.skipped.Store(0)
	c.collect(ctx, keepFlags, fullPurge, true)
	return true
}

func (c *Collector) recordSkip() {
	n := c.skipped.Add(1)
	if c.metrics != nil {
		c.metrics.IncSkipped()
	}
	logger.Debug("garbage collection skipped under contention", logger.KeySkipped, n)
}

// collect runs one cycle. The exclusive lock must be held; gateHeld tells
// whether the caller already owns the mark gate.
func (c *Collector) collect(ctx context.Context, keepFlags objtable.Flags, fullPurge, gateHeld bool) {
	cycleID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.NewLogContext(cycleID))
	ctx, span := telemetry.StartCollectionSpan(ctx, cycleID, fullPurge)
	defer span.End()

	stats := CycleStats{
		CycleID:   cycleID,
		Started:   time.Now(),
		FullPurge: fullPurge,
	}

	// The previous cycle's unreachable set must be fully consumed before a
	// new mark phase may run: the purge list aliases table records the mark
	// phase is about to reflag.
	if c.purge.pending() {
		logger.InfoCtx(ctx, "completing previous purge before collection",
			logger.KeyPending, c.purge.backlog())
		c.purgeToCompletion(ctx)
	}

	if !gateHeld {
		c.coord.beginMark()
	}

	parallel := c.cfg.Workers > 1

	markStart := time.Now()
	seed := c.analyze(ctx, keepFlags, parallel)
	stats.Objects = seed.objects
	stats.Kept = seed.kept
	stats.ClustersDissolved = seed.dissolved
	stats.RefsEliminated = seed.refsEliminated
	stats.MarkDuration = time.Since(markStart)
	metrics.ObserveMarkPhase(c.metrics, stats.Objects, stats.MarkDuration)
	telemetry.EndPhase(ctx, "mark", stats.Objects, stats.MarkDuration)

	gatherStart := time.Now()
	gathered := c.gather(ctx, parallel)
	stats.Unreachable = len(gathered.list)
	stats.ClusterMembers = gathered.clusterMembers
	stats.ClustersDissolved += gathered.dissolved
	stats.GatherDuration = time.Since(gatherStart)
	metrics.ObserveGatherPhase(c.metrics, stats.Unreachable, stats.ClusterMembers, stats.GatherDuration)
	telemetry.EndPhase(ctx, "gather", stats.Unreachable, stats.GatherDuration)
	if c.metrics != nil && stats.ClustersDissolved > 0 {
		c.metrics.AddClustersDissolved(stats.ClustersDissolved)
	}

	// Readers may resume: everything past this point only touches objects
	// no reader can reach anymore.
	c.coord.endMark()

	c.purge.begin(gathered.list)
	c.setStats(stats)

	logger.InfoCtx(ctx, "collection cycle marked",
		logger.KeyObjects, stats.Objects,
		logger.KeyKept, stats.Kept,
		logger.KeyUnreachable, stats.Unreachable,
		logger.KeyClusterMembers, stats.ClusterMembers,
		logger.KeyDissolved, stats.ClustersDissolved,
		logger.KeyDurationMs, logger.Duration(markStart))

	if fullPurge {
		c.purgeToCompletion(ctx)
	}

	if c.metrics != nil {
		c.metrics.IncCollections(fullPurge)
	}
}

// IsPurgePending reports whether unreachable objects from the last cycle
// still await destruction.
func (c *Collector) IsPurgePending() bool {
	return c.purge.pending()
}

// IncrementalPurgeTick advances the destroyer state machine by one slice.
// With useTimeLimit set it returns control roughly within timeLimit
// (Config.TimeLimit when timeLimit is zero); otherwise it runs the purge to
// completion. Safe to call when no purge is pending.
func (c *Collector) IncrementalPurgeTick(ctx context.Context, useTimeLimit bool, timeLimit time.Duration) {
	c.coord.AcquireExclusive()
	defer c.coord.ReleaseExclusive()

	if !c.purge.pending() {
		return
	}
	if timeLimit <= 0 {
		timeLimit = c.cfg.TimeLimit
	}
	c.purge.tick(ctx, useTimeLimit, timeLimit)
}

// purgeToCompletion drives the destroyer until IsFinished. Expects the
// exclusive lock to be held.
func (c *Collector) purgeToCompletion(ctx context.Context) {
	for c.purge.pending() {
		c.purge.tick(ctx, false, 0)
	}
}

// Close stops the purge worker goroutine. The collector must be idle.
func (c *Collector) Close() {
	c.purge.close()
}

func (c *Collector) setStats(s CycleStats) {
	c.statsMu.Lock()
	c.last = s
	c.statsMu.Unlock()
}

// addDestroyed folds purge progress into the last cycle's stats.
func (c *Collector) addDestroyed(n int, d time.Duration) {
	c.statsMu.Lock()
	c.last.Destroyed += n
	c.last.PurgeDuration += d
	c.statsMu.Unlock()
}
