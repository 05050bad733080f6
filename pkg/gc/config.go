package gc

import (
	"runtime"
	"time"
)

// Config holds the collector's tuning parameters. Values are read at call
// time; the zero value is normalized to the defaults below.
type Config struct {
	// Workers is the number of goroutines used for the parallel mark and
	// gather phases. <= 1 disables parallelism.
	Workers int

	// MinObjectsPerWorker is the minimum shard size for a parallel
	// sub-task. When the table is smaller than Workers*MinObjectsPerWorker
	// the phase runs with fewer workers.
	MinObjectsPerWorker int

	// ClusteringEnabled controls whether cluster compression is honored.
	// When false, cluster roots and members are treated as ordinary
	// objects (the cluster store must then be empty).
	ClusteringEnabled bool

	// MultithreadedDestruction allows physical deallocation on the purge
	// worker goroutine for classes declaring DestroyOffThreadSafe.
	MultithreadedDestruction bool

	// AllowEliminatingReferences controls whether strong references to
	// pending-kill objects are nulled in place during the mark phase.
	AllowEliminatingReferences bool

	// MaxSkippedCollections bounds how many consecutive TryCollectGarbage
	// attempts may be skipped under contention before the next attempt
	// blocks and forces the collection.
	MaxSkippedCollections int

	// TimeLimit is the default soft budget for one incremental purge tick
	// when the caller enables time slicing without an explicit limit.
	TimeLimit time.Duration

	// TimeCheckStride is how many objects a time-sliced purge step
	// processes between deadline checks, keeping the clock off the hot
	// path.
	TimeCheckStride int

	// FinishDestroyWarnAfter is the number of poll attempts after which a
	// single object still not ready for FinishDestroy is logged as a
	// latency warning.
	FinishDestroyWarnAfter int

	// FinishDestroyFatalAfter is the number of consecutive full poll
	// passes with zero progress after which the purge escalates to fatal.
	// An object that never becomes ready is an engine bug; retrying
	// forever would hang the purge silently.
	FinishDestroyFatalAfter int
}

// DefaultConfig returns the default tuning parameters.
func DefaultConfig() Config {
	return Config{
		Workers:                    runtime.NumCPU(),
		MinObjectsPerWorker:        512,
		ClusteringEnabled:          true,
		MultithreadedDestruction:   true,
		AllowEliminatingReferences: true,
		MaxSkippedCollections:      5,
		TimeLimit:                  2 * time.Millisecond,
		TimeCheckStride:            64,
		FinishDestroyWarnAfter:     10,
		FinishDestroyFatalAfter:    1000,
	}
}

// normalized returns a copy with zero values replaced by defaults.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MinObjectsPerWorker <= 0 {
		c.MinObjectsPerWorker = def.MinObjectsPerWorker
	}
	if c.MaxSkippedCollections <= 0 {
		c.MaxSkippedCollections = def.MaxSkippedCollections
	}
	if c.TimeLimit <= 0 {
		c.TimeLimit = def.TimeLimit
	}
	if c.TimeCheckStride <= 0 {
		c.TimeCheckStride = def.TimeCheckStride
	}
	if c.FinishDestroyWarnAfter <= 0 {
		c.FinishDestroyWarnAfter = def.FinishDestroyWarnAfter
	}
	if c.FinishDestroyFatalAfter <= 0 {
		c.FinishDestroyFatalAfter = def.FinishDestroyFatalAfter
	}
	return c
}

// workersFor returns how many workers a parallel pass over n objects should
// use, honoring the MinObjectsPerWorker floor.
func (c Config) workersFor(n int, parallel bool) int {
	if !parallel || c.Workers <= 1 || n == 0 {
		return 1
	}
	w := n / c.MinObjectsPerWorker
	if w < 1 {
		w = 1
	}
	if w > c.Workers {
		w = c.Workers
	}
	return w
}
