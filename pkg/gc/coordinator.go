package gc

import (
	"sync"
)

// Coordinator arbitrates between a full collection and every other use of
// the object table.
//
// Two mechanisms layer on top of each other:
//
//   - The exclusive GC lock. At most one collection cycle runs at a time;
//     AcquireExclusive blocks, TryAcquireExclusive lets callers skip a cycle
//     under contention instead of stalling.
//   - The table-reader gate. Readers (an async loader, for instance)
//     register open sections; the mark phase cannot begin while any section
//     is open, and no new section opens while a mark phase runs or a
//     collector is already waiting to mark. Waiting collectors take
//     precedence so a stream of readers cannot starve the GC forever.
type Coordinator struct {
	// gcMu is the exclusive GC lock.
	gcMu sync.Mutex

	// gateMu guards the reader gate state below.
	gateMu  sync.Mutex
	cond    *sync.Cond
	readers int
	marking bool
	waiting int
}

// NewCoordinator creates a coordinator with no lock held and no readers.
func NewCoordinator() *Coordinator {
	c := &Coordinator{}
	c.cond = sync.NewCond(&c.gateMu)
	return c
}

// AcquireExclusive blocks until the exclusive GC lock is held.
//
// There is deliberately no "already held by me" fast path: mutex ownership
// cannot be attributed to a goroutine, so a process-global flag would let a
// second goroutine slip past while the first still holds the lock. Code
// running inside a collection cycle reaches the destroyer through internal
// calls that never reacquire.
func (c *Coordinator) AcquireExclusive() {
	c.gcMu.Lock()
}

// TryAcquireExclusive attempts the exclusive GC lock without blocking.
func (c *Coordinator) TryAcquireExclusive() bool {
	return c.gcMu.TryLock()
}

// ReleaseExclusive releases the exclusive GC lock.
func (c *Coordinator) ReleaseExclusive() {
	c.gcMu.Unlock()
}

// BeginTableRead opens a reader section. Blocks while a mark phase is in
// progress or a collector is waiting to start one.
func (c *Coordinator) BeginTableRead() {
	c.gateMu.Lock()
	for c.marking || c.waiting > 0 {
		c.cond.Wait()
	}
	c.readers++
	c.gateMu.Unlock()
}

// TryBeginTableRead opens a reader section only if it can do so without
// blocking.
func (c *Coordinator) TryBeginTableRead() bool {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	if c.marking || c.waiting > 0 {
		return false
	}
	c.readers++
	return true
}

// EndTableRead closes a reader section.
func (c *Coordinator) EndTableRead() {
	c.gateMu.Lock()
	c.readers--
	if c.readers < 0 {
		c.gateMu.Unlock()
		invariantf("EndTableRead without matching BeginTableRead")
	}
	c.cond.Broadcast()
	c.gateMu.Unlock()
}

// beginMark blocks until every reader section is closed, then marks the gate
// so no new section opens until endMark.
func (c *Coordinator) beginMark() {
	c.gateMu.Lock()
	c.waiting++
	for c.readers > 0 || c.marking {
		c.cond.Wait()
	}
	c.waiting--
	c.marking = true
	c.gateMu.Unlock()
}

// tryBeginMark is the non-blocking variant used by TryCollectGarbage.
func (c *Coordinator) tryBeginMark() bool {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	if c.readers > 0 || c.marking {
		return false
	}
	c.marking = true
	return true
}

// endMark reopens the gate for readers.
func (c *Coordinator) endMark() {
	c.gateMu.Lock()
	c.marking = false
	c.cond.Broadcast()
	c.gateMu.Unlock()
}
