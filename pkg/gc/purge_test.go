package gc_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tracegc/pkg/gc"
	"github.com/marmos91/tracegc/pkg/gc/gctest"
)

func TestIncrementalPurgeDrainsBacklog(t *testing.T) {
	h := newTestHeap(4096)
	defer h.Collector.Close()
	ctx := context.Background()

	h.Populate(gctest.GraphSpec{
		Objects:      2000,
		Roots:        16,
		Fanout:       2,
		GarbageRatio: 0.5,
		Seed:         3,
	})

	h.Collector.CollectGarbage(ctx, 0, false)
	require.True(t, h.Collector.IsPurgePending())

	unreachable := h.Collector.LastCycle().Unreachable
	require.Greater(t, unreachable, 0)

	// The budget is soft: the deadline is checked every TimeCheckStride
	// objects, so a tick may overrun by one stride's worth of work. A
	// generous multiple keeps the bound meaningful without flaking on a
	// loaded machine.
	const limit = 100 * time.Microsecond
	ticks := 0
	for h.Collector.IsPurgePending() {
		tickStart := time.Now()
		h.Collector.IncrementalPurgeTick(ctx, true, limit)
		require.Less(t, time.Since(tickStart), 100*limit,
			"time-sliced tick did not return near its budget")
		ticks++
		require.Less(t, ticks, 100000, "purge did not converge")
	}

	stats := h.Collector.LastCycle()
	assert.Equal(t, unreachable, stats.Destroyed)
	assert.False(t, h.Collector.IsPurgePending())
}

func TestIncrementalPurgeTickWithoutBacklog(t *testing.T) {
	h := newTestHeap(16)
	defer h.Collector.Close()

	// A tick with nothing pending is a no-op, not an error.
	h.Collector.IncrementalPurgeTick(context.Background(), true, 0)
	assert.False(t, h.Collector.IsPurgePending())
}

func TestDeferredDestructionSpansTicks(t *testing.T) {
	h := newTestHeap(16)
	defer h.Collector.Close()
	ctx := context.Background()

	d := h.New("slow")
	d.DelayFinish(2)

	h.Collector.CollectGarbage(ctx, 0, false)
	require.True(t, h.Collector.IsPurgePending())

	ticks := 0
	for h.Collector.IsPurgePending() {
		h.Collector.IncrementalPurgeTick(ctx, true, time.Millisecond)
		ticks++
		require.Less(t, ticks, 100)
	}

	// Two not-ready polls mean at least three ticks before the free.
	assert.GreaterOrEqual(t, ticks, 3)
	assert.True(t, d.Destroyed())
	assert.False(t, h.Alive(d))
}

func TestFullPurgeWaitsForSlowObjects(t *testing.T) {
	h := newTestHeap(16)
	defer h.Collector.Close()

	d := h.New("slow")
	d.DelayFinish(5)

	// Full purge polls readiness to completion within the call.
	h.Collector.CollectGarbage(context.Background(), 0, true)

	assert.True(t, d.Destroyed())
	assert.False(t, h.Collector.IsPurgePending())
}

func TestOffThreadDestruction(t *testing.T) {
	h := gctest.NewHeap(64, gc.Config{
		Workers:                  1,
		ClusteringEnabled:        true,
		MultithreadedDestruction: true,
	})
	defer h.Collector.Close()

	// A mix of classes: resources may be finished and freed on the worker,
	// plain nodes only ever on the calling goroutine.
	var garbage []*gctest.Node
	for i := 0; i < 8; i++ {
		r := gctest.NewResource("res")
		h.Add(r, 0)
		n := h.New("plain")
		garbage = append(garbage, r, n)
	}

	h.Collector.CollectGarbage(context.Background(), 0, true)

	for _, g := range garbage {
		assert.True(t, g.Destroyed())
		assert.False(t, h.Alive(g))
	}
	assert.Equal(t, 16, h.Collector.LastCycle().Destroyed)
}

func TestPurgeTickBlocksWhileLockHeldElsewhere(t *testing.T) {
	h := newTestHeap(64)
	defer h.Collector.Close()
	ctx := context.Background()

	h.New("g")
	h.Collector.CollectGarbage(ctx, 0, false)
	require.True(t, h.Collector.IsPurgePending())

	coord := h.Collector.Coordinator()
	coord.AcquireExclusive()

	done := make(chan struct{})
	go func() {
		h.Collector.IncrementalPurgeTick(ctx, false, 0)
		close(done)
	}()

	// The tick must queue behind the hold, not slip past it.
	select {
	case <-done:
		t.Fatal("purge tick ran while another goroutine held the exclusive lock")
	case <-time.After(50 * time.Millisecond):
	}

	coord.ReleaseExclusive()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purge tick never acquired the lock")
	}
	assert.False(t, h.Collector.IsPurgePending())
}

func TestCollectAndTickFromSeparateGoroutines(t *testing.T) {
	h := newTestHeap(4096)
	defer h.Collector.Close()
	ctx := context.Background()

	// A background ticker hammers the destroyer while the main goroutine runs
	// full cycles; the exclusive lock must serialize the two.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Collector.IncrementalPurgeTick(ctx, true, 50*time.Microsecond)
			}
		}
	}()

	var garbage []*gctest.Node
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 50; i++ {
			garbage = append(garbage, h.New(fmt.Sprintf("g%d_%d", cycle, i)))
		}
		h.Collector.CollectGarbage(ctx, 0, false)
	}
	close(stop)
	wg.Wait()

	for h.Collector.IsPurgePending() {
		h.Collector.IncrementalPurgeTick(ctx, true, time.Millisecond)
	}
	for _, g := range garbage {
		require.True(t, g.Destroyed())
		require.False(t, h.Alive(g))
	}
}

func TestCollectionCompletesOutstandingPurgeFirst(t *testing.T) {
	h := newTestHeap(64)
	defer h.Collector.Close()
	ctx := context.Background()

	g1 := h.New("g1")
	h.Collector.CollectGarbage(ctx, 0, false)
	require.True(t, h.Collector.IsPurgePending())

	// Starting the next cycle with a backlog outstanding must finish the old
	// purge before remarking, never corrupt it.
	g2 := h.New("g2")
	h.Collector.CollectGarbage(ctx, 0, true)

	assert.True(t, g1.Destroyed())
	assert.True(t, g2.Destroyed())
	assert.False(t, h.Collector.IsPurgePending())
}
