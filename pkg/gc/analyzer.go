package gc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/pkg/objtable"
	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// markResult is what the mark phase reports back to the cycle.
type markResult struct {
	objects        int
	kept           int
	dissolved      int
	refsEliminated int
}

// dissolveRequest queues a cluster dissolution discovered during the seed
// pass: a garbage root or a garbage member makes the whole cluster's
// invariants void.
type dissolveRequest struct {
	root   int32
	reason string
}

// seedShard is one worker's output from the seed pass. Thread-local; merged
// after the parallel region joins.
type seedShard struct {
	work        []*objtable.Record
	keptRoots   []int32
	keptMembers []int32
	dissolves   []dissolveRequest
	kept        int
}

// markState carries one mark phase's shared state.
type markState struct {
	c         *Collector
	keepFlags objtable.Flags
	parallel  bool
	clustered bool
	eliminate bool

	// refsEliminated counts nulled references across all workers.
	refsEliminated atomic.Int64
}

// analyze walks the object table once: a sharded seed pass classifies every
// object and marks collection candidates unreachable, a serial step settles
// cluster keeps and garbage-cluster dissolutions, then the seeded work lists
// are drained in parallel, replaying reference streams and clearing the
// unreachable flag on everything a strong chain from the roots touches.
func (c *Collector) analyze(ctx context.Context, keepFlags objtable.Flags, parallel bool) markResult {
	m := &markState{
		c:         c,
		keepFlags: keepFlags,
		parallel:  parallel,
		clustered: c.cfg.ClusteringEnabled,
		eliminate: c.cfg.AllowEliminatingReferences,
	}

	n := int(c.store.NumRecords())
	workers := c.cfg.workersFor(n, parallel)

	shards := m.seed(ctx, n, workers)

	// Serial settlement. Kept members first: their ReachableInCluster bit
	// must be visible before any dissolution consults it.
	var result markResult
	work := make([]*objtable.Record, 0, 64)
	visited := make(map[int32]struct{})
	for _, sh := range shards {
		result.kept += sh.kept
		work = append(work, sh.work...)

		for _, idx := range sh.keptMembers {
			rec := c.store.Record(idx)
			if rec == nil {
				continue
			}
			rec.TrySetFlags(objtable.FlagReachableInCluster)
			owner := c.store.Record(rec.ClusterIndex())
			if owner == nil {
				invariantf("kept cluster member %s has freed owner %d",
					describeObject(c.store, idx), rec.ClusterIndex())
			}
			work = m.keepClusterSerial(owner, visited, work)
			// Kept members are walked too: their references may have been
			// reassigned since the cluster was built.
			work = append(work, rec)
		}
		for _, idx := range sh.keptRoots {
			rec := c.store.Record(idx)
			if rec == nil {
				continue
			}
			work = m.keepClusterSerial(rec, visited, work)
		}
	}
	// Several garbage members of one cluster each queue a request; the
	// cluster dissolves once.
	dissolvedRoots := make(map[int32]struct{})
	for _, sh := range shards {
		for _, req := range sh.dissolves {
			if _, done := dissolvedRoots[req.root]; done {
				continue
			}
			dissolvedRoots[req.root] = struct{}{}
			c.clusters.DissolveClusterAndMarkUnreachable(req.root, req.reason)
			// A kept root outlives its cluster as an ordinary object.
			if _, kept := visited[req.root]; !kept {
				if root := c.store.Record(req.root); root != nil {
					root.SetFlags(objtable.FlagUnreachable)
				}
			}
			result.dissolved++
		}
	}
	if result.dissolved > 0 {
		c.clusters.FinishDissolutions()
	}

	m.drain(ctx, work, workers)

	result.objects = n
	result.refsEliminated = int(m.refsEliminated.Load())
	return result
}

// seed partitions [1, n] into contiguous shards, one per worker, each
// classifying its records in index order.
func (m *markState) seed(ctx context.Context, n, workers int) []*seedShard {
	shards := make([]*seedShard, workers)
	if workers <= 1 {
		shards[0] = m.seedRange(ctx, 1, int32(n)+1, 0)
		return shards
	}

	var wg sync.WaitGroup
	per := n / workers
	for w := 0; w < workers; w++ {
		start := int32(w*per) + 1
		end := int32((w + 1) * per + 1)
		if w == workers-1 {
			end = int32(n) + 1
		}
		wg.Add(1)
		go func(w int, start, end int32) {
			defer wg.Done()
			shards[w] = m.seedRange(ctx, start, end, w)
		}(w, start, end)
	}
	wg.Wait()
	return shards
}

// seedRange classifies records in [start, end).
func (m *markState) seedRange(ctx context.Context, start, end int32, worker int) *seedShard {
	sh := &seedShard{}
	store := m.c.store

	logger.DebugCtx(ctx, "seeding shard",
		logger.KeyWorker, worker,
		logger.KeyShardStart, start,
		logger.KeyShardEnd, end)

	for idx := start; idx < end; idx++ {
		if store.IsPermanent(idx) {
			continue
		}
		rec := store.Record(idx)
		if rec == nil {
			continue
		}

		flags := rec.Flags()
		garbage := flags.Has(objtable.FlagGarbage)
		if garbage && flags.Has(objtable.FlagRootSet) {
			invariantf("pending-kill object is rooted: %s", describeObject(store, idx))
		}

		// Stale bit from the previous cycle.
		if flags.Has(objtable.FlagReachableInCluster) {
			rec.ClearFlags(objtable.FlagReachableInCluster)
		}

		// Fast keep first; the expensive per-instance check only runs for
		// objects the flags would collect.
		kept := flags.HasAny(objtable.FlagsFastKeep | m.keepFlags)
		if !kept && !garbage {
			if ka, ok := rec.Object.(refstream.KeepAliver); ok && ka.IsKeptAlive() {
				kept = true
			}
		}

		switch {
		case m.clustered && rec.IsClusterMember():
			// Members are never individually marked unreachable; only the
			// whole cluster is reachable or not.
			if garbage {
				sh.dissolves = append(sh.dissolves, dissolveRequest{
					root:   rec.ClusterIndex(),
					reason: "member became garbage",
				})
			} else if kept {
				sh.keptMembers = append(sh.keptMembers, idx)
				sh.kept++
			}

		case m.clustered && rec.IsClusterRoot():
			if garbage {
				sh.dissolves = append(sh.dissolves, dissolveRequest{
					root:   idx,
					reason: "root became garbage",
				})
			} else if kept {
				sh.keptRoots = append(sh.keptRoots, idx)
				sh.kept++
			} else {
				rec.SetFlags(objtable.FlagUnreachable)
			}

		default:
			if kept && !garbage {
				sh.work = append(sh.work, rec)
				sh.kept++
			} else {
				rec.SetFlags(objtable.FlagUnreachable)
			}
		}
	}
	return sh
}

// keepClusterSerial marks the cluster rooted at rec reachable during the
// serial settlement step: the root's unreachable bit is cleared, mutable
// members are queued for walking, and referenced clusters are kept
// recursively. visited makes the recursion cycle-safe for roots that were
// never marked unreachable (kept roots).
func (m *markState) keepClusterSerial(rec *objtable.Record, visited map[int32]struct{}, work []*objtable.Record) []*objtable.Record {
	if _, seen := visited[rec.Index]; seen {
		return work
	}
	visited[rec.Index] = struct{}{}
	rec.TryClearFlags(objtable.FlagUnreachable)

	cl := m.c.clusters.Cluster(-rec.ClusterIndex())
	if cl == nil {
		invariantf("cluster root %s has no cluster slot", describeObject(m.c.store, rec.Index))
	}

	for member := range cl.MutableObjects {
		if mrec := m.c.store.Record(member); mrec != nil {
			work = append(work, mrec)
		}
	}
	for slot := range cl.ReferencedClusters {
		refC := m.c.clusters.Cluster(slot)
		if refC == nil {
			invariantf("cluster %d references freed cluster slot %d", cl.Slot, slot)
		}
		if root := m.c.store.Record(refC.RootIndex); root != nil {
			work = m.keepClusterSerial(root, visited, work)
		}
	}
	return work
}

// drain distributes the seed work across workers and replays reference
// streams until every list is empty. Each worker pushes newly discovered
// objects onto its own list only, so no coordination is needed beyond the
// final join.
func (m *markState) drain(ctx context.Context, work []*objtable.Record, workers int) {
	if len(work) == 0 {
		return
	}
	if workers <= 1 || len(work) < workers {
		m.drainList(ctx, work, 0)
		return
	}

	var wg sync.WaitGroup
	per := len(work) / workers
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := (w + 1) * per
		if w == workers-1 {
			hi = len(work)
		}
		// Private copy: drainList appends to its slice.
		own := append([]*objtable.Record(nil), work[lo:hi]...)
		wg.Add(1)
		go func(w int, own []*objtable.Record) {
			defer wg.Done()
			m.drainList(ctx, own, w)
		}(w, own)
	}
	wg.Wait()
}

// drainList processes one worker's list to exhaustion, LIFO.
func (m *markState) drainList(ctx context.Context, list []*objtable.Record, worker int) {
	processed := 0
	for len(list) > 0 {
		rec := list[len(list)-1]
		list = list[:len(list)-1]
		processed++

		class := rec.Object.Class()
		if class == nil {
			invariantf("object with nil class reached the walker: %s",
				describeObject(m.c.store, rec.Index))
		}
		refstream.Replay(class.Stream, rec.Object, func(name string, ref *refstream.Ref) {
			list = m.handleObjectReference(list, rec, class, name, ref)
		})
	}
	logger.DebugCtx(ctx, "drained work list",
		logger.KeyWorker, worker,
		logger.KeyObjects, processed)
}

// handleObjectReference is the reference processor: every pointer discovered
// by the walker funnels through here.
func (m *markState) handleObjectReference(list []*objtable.Record, src *objtable.Record, class *refstream.Class, field string, ref *refstream.Ref) []*objtable.Record {
	idx := ref.Index
	if idx == 0 {
		return list
	}
	// Objects in the permanent pool are never collected; O(1) range check.
	if m.c.store.IsPermanent(idx) {
		return list
	}

	target := m.c.store.Record(idx)
	if target == nil || target.Serial() != ref.Serial {
		invariantf("corrupt reference from %s field %q of class %s: target %s (serial %d)",
			describeObject(m.c.store, src.Index), field, class.Name,
			describeObject(m.c.store, idx), ref.Serial)
	}

	// Pending-kill targets are nulled rather than kept, when allowed.
	if target.HasAnyFlags(objtable.FlagGarbage) && m.eliminate {
		ref.Clear()
		m.refsEliminated.Add(1)
		return list
	}

	if target.HasAnyFlags(objtable.FlagUnreachable) {
		// Exactly-once even when two workers race on the same target: the
		// CAS admits a single winner, who alone enqueues or expands.
		if !target.TryClearFlags(objtable.FlagUnreachable) {
			return list
		}
		if m.clustered && target.IsClusterRoot() {
			return m.keepClusterParallel(target, list)
		}
		return append(list, target)
	}

	if m.clustered && target.IsClusterMember() &&
		!target.HasAnyFlags(objtable.FlagReachableInCluster) {
		if target.TrySetFlags(objtable.FlagReachableInCluster) {
			owner := m.c.store.Record(target.ClusterIndex())
			if owner == nil {
				invariantf("cluster member %s has freed owner %d",
					describeObject(m.c.store, idx), target.ClusterIndex())
			}
			if owner.TryClearFlags(objtable.FlagUnreachable) {
				list = m.keepClusterParallel(owner, list)
			}
		}
	}
	return list
}

// keepClusterParallel marks the cluster rooted at rec reachable during the
// parallel drain. The caller must have won the root's unreachable CAS, which
// is the exactly-once guard: a cluster cleared of unreachable is never
// re-processed. Kept roots were all settled serially before the drain
// started, so a failed CAS here always means "already processed".
func (m *markState) keepClusterParallel(rec *objtable.Record, list []*objtable.Record) []*objtable.Record {
	cl := m.c.clusters.Cluster(-rec.ClusterIndex())
	if cl == nil {
		invariantf("cluster root %s has no cluster slot", describeObject(m.c.store, rec.Index))
	}

	for member := range cl.MutableObjects {
		if mrec := m.c.store.Record(member); mrec != nil {
			list = append(list, mrec)
		}
	}
	for slot := range cl.ReferencedClusters {
		refC := m.c.clusters.Cluster(slot)
		if refC == nil {
			invariantf("cluster %d references freed cluster slot %d", cl.Slot, slot)
		}
		root := m.c.store.Record(refC.RootIndex)
		if root != nil && root.TryClearFlags(objtable.FlagUnreachable) {
			list = m.keepClusterParallel(root, list)
		}
	}
	return list
}
