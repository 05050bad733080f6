package gc

import (
	"context"
	"sync"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/pkg/objtable"
)

// gatherResult is the unreachable set produced by one gather pass.
type gatherResult struct {
	// list holds every record awaiting destruction, in ascending index
	// order within each shard.
	list []*objtable.Record

	// clusterMembers counts list entries contributed by clusters dissolved
	// during this pass.
	clusterMembers int

	// dissolved counts clusters dissolved for unreachability.
	dissolved int
}

// gatherShard is one worker's slice of the unreachable set.
type gatherShard struct {
	list           []*objtable.Record
	clusterMembers int
	dissolved      int
}

// gather scans the table for objects the mark phase left unreachable and
// builds the destruction list. Unreachable cluster roots are dissolved
// inline: the dissolving worker owns the root's shard and appends the
// members that fall out to its own buffer, while concurrent shards still
// skip those members by their owner index (reset is deferred until the
// workers join).
func (c *Collector) gather(ctx context.Context, parallel bool) gatherResult {
	n := int(c.store.NumRecords())
	workers := c.cfg.workersFor(n, parallel)

	shards := make([]*gatherShard, workers)
	if workers <= 1 {
		shards[0] = c.gatherRange(ctx, 1, int32(n)+1, 0)
	} else {
		var wg sync.WaitGroup
		per := n / workers
		for w := 0; w < workers; w++ {
			start := int32(w*per) + 1
			end := int32((w+1)*per + 1)
			if w == workers-1 {
				end = int32(n) + 1
			}
			wg.Add(1)
			go func(w int, start, end int32) {
				defer wg.Done()
				shards[w] = c.gatherRange(ctx, start, end, w)
			}(w, start, end)
		}
		wg.Wait()
	}

	var result gatherResult
	for _, sh := range shards {
		result.dissolved += sh.dissolved
	}
	if c.clusters != nil && result.dissolved > 0 {
		c.clusters.FinishDissolutions()
	}

	total := 0
	for _, sh := range shards {
		total += len(sh.list)
	}
	result.list = make([]*objtable.Record, 0, total)
	for _, sh := range shards {
		result.list = append(result.list, sh.list...)
		result.clusterMembers += sh.clusterMembers
	}
	return result
}

// gatherRange collects unreachable records in [start, end).
func (c *Collector) gatherRange(ctx context.Context, start, end int32, worker int) *gatherShard {
	sh := &gatherShard{}

	for idx := start; idx < end; idx++ {
		rec := c.store.Record(idx)
		if rec == nil {
			continue
		}
		if !rec.HasAnyFlags(objtable.FlagUnreachable) {
			continue
		}

		switch {
		case rec.IsClusterMember():
			// Members of a cluster mid-dissolution; the worker dissolving
			// the root collects them.
			continue

		case rec.IsClusterRoot():
			members := c.clusters.DissolveClusterAndMarkUnreachable(rec.Index, "cluster unreachable")
			sh.dissolved++
			sh.list = append(sh.list, rec)
			for _, m := range members {
				if mrec := c.store.Record(m); mrec != nil {
					sh.list = append(sh.list, mrec)
					sh.clusterMembers++
				}
			}

		default:
			sh.list = append(sh.list, rec)
		}
	}

	if len(sh.list) > 0 {
		logger.DebugCtx(ctx, "gathered unreachable objects",
			logger.KeyWorker, worker,
			logger.KeyUnreachable, len(sh.list),
			logger.KeyClusterMembers, sh.clusterMembers,
			logger.KeyDissolved, sh.dissolved)
	}
	return sh
}
