package gc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/pkg/metrics"
	"github.com/marmos91/tracegc/pkg/objtable"
)

// purgePhase is the destroyer's position in the two-phase protocol.
type purgePhase int

const (
	// purgeIdle: no unreachable set outstanding.
	purgeIdle purgePhase = iota

	// purgeBeginDestroy: BeginDestroy is being issued across the set, in
	// list order, on the tick thread.
	purgeBeginDestroy

	// purgeFinishDestroy: polling readiness, finishing, and freeing slots.
	purgeFinishDestroy
)

// purgeRun is the incremental destroyer. Every object in the gathered
// unreachable set goes through BeginDestroy exactly once, in list order;
// once it reports ready it gets FinishDestroy and the physical table free.
//
// Physical destruction of classes declaring DestroyOffThreadSafe may run on
// the worker goroutine; everything else is freed on the tick thread. The two
// never share an object: ready records are routed to exactly one of the two
// queues, and a batch handed to the worker is owned by it until it comes back
// whole on doneCh.
type purgeRun struct {
	c *Collector

	phase purgePhase

	// beginQ holds the unreachable list; beginCursor is the resume point for
	// a time-sliced BeginDestroy pass.
	beginQ      []*objtable.Record
	beginCursor int

	// finishQ holds records awaiting readiness and main-thread destruction.
	finishQ []*objtable.Record

	// offQ holds ready off-thread-safe records awaiting worker dispatch.
	offQ []*objtable.Record

	// passes counts consecutive full polls of finishQ with zero progress.
	passes int

	// backlogN mirrors the remaining object count for lock-free reads.
	backlogN atomic.Int64

	// Off-thread destruction. workerCh hands a batch to the worker
	// goroutine; doneCh returns it once every object in it has been
	// finished and freed.
	workerCh    chan []*objtable.Record
	doneCh      chan []*objtable.Record
	stopCh      chan struct{}
	outstanding bool
}

func (p *purgeRun) init(c *Collector) {
	p.c = c
	if c.cfg.MultithreadedDestruction {
		p.workerCh = make(chan []*objtable.Record, 1)
		p.doneCh = make(chan []*objtable.Record, 1)
		p.stopCh = make(chan struct{})
		go p.workerLoop()
	}
}

// workerLoop physically destroys batches of off-thread-safe objects. Every
// record in a batch has already passed ReadyForFinishDestroy on the tick
// thread; the table free itself is safe from here (the table serializes it).
func (p *purgeRun) workerLoop() {
	for {
		select {
		case batch := <-p.workerCh:
			for _, rec := range batch {
				rec.Object.FinishDestroy()
				p.c.store.Free(rec.Index)
			}
			p.doneCh <- batch
		case <-p.stopCh:
			return
		}
	}
}

func (p *purgeRun) close() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

// pending reports whether objects from the last cycle still await
// destruction. Safe without the GC lock.
func (p *purgeRun) pending() bool {
	return p.backlogN.Load() > 0
}

// backlog returns the number of objects not yet freed.
func (p *purgeRun) backlog() int {
	return int(p.backlogN.Load())
}

// begin hands a freshly gathered unreachable set to the destroyer. The
// previous set must be fully consumed.
func (p *purgeRun) begin(list []*objtable.Record) {
	if p.phase != purgeIdle {
		invariantf("purge started while %d objects from the previous cycle remain", p.backlog())
	}
	if len(list) == 0 {
		return
	}

	p.phase = purgeBeginDestroy
	p.beginQ = list
	p.beginCursor = 0
	p.passes = 0
	p.backlogN.Store(int64(len(list)))
	metrics.SetPurgeBacklog(p.c.metrics, len(list))
}

// dispatchOff hands the accumulated ready off-thread records to the worker,
// if it is free to take them.
func (p *purgeRun) dispatchOff() {
	if p.workerCh == nil || p.outstanding || len(p.offQ) == 0 {
		return
	}
	p.outstanding = true
	p.workerCh <- p.offQ
	p.offQ = nil
}

// tick advances the destroyer. With useTimeLimit it returns soon after
// timeLimit elapses, resuming where it left off next call; without it the
// current phase runs until blocked or done. Must hold the exclusive GC lock.
func (p *purgeRun) tick(ctx context.Context, useTimeLimit bool, timeLimit time.Duration) {
	start := time.Now()
	deadline := start.Add(timeLimit)
	stride := p.c.cfg.TimeCheckStride
	destroyed := 0

	defer func() {
		d := time.Since(start)
		metrics.ObservePurgeTick(p.c.metrics, destroyed, d)
		metrics.SetPurgeBacklog(p.c.metrics, p.backlog())
		p.c.addDestroyed(destroyed, d)
		if p.phase == purgeIdle && destroyed > 0 {
			logger.InfoCtx(ctx, "purge complete",
				logger.KeyDestroyed, destroyed,
				logger.KeyDurationMs, logger.Duration(start))
		}
	}()

	overBudget := func(i int) bool {
		return useTimeLimit && i%stride == 0 && time.Now().After(deadline)
	}

	// collect retrieves the worker's completed batch, blocking only when the
	// caller has no time budget to respect.
	collect := func(block bool) {
		if !p.outstanding {
			return
		}
		var batch []*objtable.Record
		if block {
			batch = <-p.doneCh
		} else {
			select {
			case batch = <-p.doneCh:
			default:
				return
			}
		}
		p.outstanding = false
		p.backlogN.Add(int64(-len(batch)))
		destroyed += len(batch)
		p.passes = 0
		p.dispatchOff()
	}

	if p.phase == purgeBeginDestroy {
		for p.beginCursor < len(p.beginQ) {
			rec := p.beginQ[p.beginCursor]
			p.beginCursor++
			rec.Object.BeginDestroy()
			p.finishQ = append(p.finishQ, rec)
			if overBudget(p.beginCursor) {
				return
			}
		}
		p.beginQ = nil
		p.beginCursor = 0
		p.phase = purgeFinishDestroy
		p.passes = 0
	}

	for p.phase == purgeFinishDestroy {
		collect(!useTimeLimit)

		if len(p.finishQ) == 0 && len(p.offQ) == 0 && !p.outstanding {
			p.finishQ = nil
			p.phase = purgeIdle
			return
		}

		progress := false
		var off []*objtable.Record
		deferred := p.finishQ[:0]
		for i, rec := range p.finishQ {
			if overBudget(i) {
				p.finishQ = append(deferred, p.finishQ[i:]...)
				p.offQ = append(p.offQ, off...)
				p.dispatchOff()
				return
			}
			if !rec.Object.ReadyForFinishDestroy() {
				deferred = append(deferred, rec)
				continue
			}
			progress = true
			if p.workerCh != nil && rec.Object.Class().DestroyOffThreadSafe {
				off = append(off, rec)
				continue
			}
			rec.Object.FinishDestroy()
			p.c.store.Free(rec.Index)
			p.backlogN.Add(-1)
			destroyed++
		}
		p.finishQ = deferred
		p.offQ = append(p.offQ, off...)
		p.dispatchOff()

		if progress {
			p.passes = 0
		} else if len(p.finishQ) > 0 {
			// Only objects stuck in the poll loop count as a stall; waiting
			// on the worker to drain its batch is ordinary latency.
			p.passes++
			if p.passes == p.c.cfg.FinishDestroyWarnAfter {
				logger.WarnCtx(ctx, "objects not ready for destruction after repeated polls",
					logger.KeyPending, len(p.finishQ),
					logger.KeyAttempt, p.passes,
					logger.KeyObjectIndex, p.finishQ[0].Index)
			}
			if p.passes >= p.c.cfg.FinishDestroyFatalAfter {
				invariantf("object never became ready for FinishDestroy after %d passes: %s",
					p.passes, describeObject(p.c.store, p.finishQ[0].Index))
			}
		}

		if useTimeLimit {
			return
		}
		if !progress && len(p.finishQ) > 0 && !p.outstanding {
			// Waiting on an external completion (an async release fence);
			// yield rather than hot-spin.
			time.Sleep(50 * time.Microsecond)
		}
	}
}
