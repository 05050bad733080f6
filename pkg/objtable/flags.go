package objtable

import "strings"

// Flags is the per-record flag word. All bits are mutated through the
// Record's atomic accessors; during a parallel phase the only transitions
// allowed to race are idempotent ones (clearing an already-cleared bit is a
// harmless no-op).
type Flags uint32

const (
	// FlagUnreachable marks an object not (yet) proven reachable during
	// the current mark phase. Set on every collection candidate when the
	// phase seeds, cleared as reachability is proven.
	FlagUnreachable Flags = 1 << iota

	// FlagRootSet exempts an object from collection. Part of the fast keep
	// check.
	FlagRootSet

	// FlagGarbage marks an object logically dead (pending kill) but not
	// yet physically freed. References to it may be nulled during the walk.
	FlagGarbage

	// FlagClusterRoot marks the root object of a cluster.
	FlagClusterRoot

	// FlagReachableInCluster marks a cluster member referenced from outside
	// its cluster during the current mark phase. Consulted on dissolution:
	// members carrying it stay alive.
	FlagReachableInCluster

	// FlagAsyncLoading marks an object whose load has not completed.
	// Cluster verification exempts such members until NotifyLoaded.
	FlagAsyncLoading

	// FlagDontCollect exempts an object from collection without rooting it.
	// Part of the fast keep check.
	FlagDontCollect
)

// FlagsFastKeep are the lockless O(1) keep bits checked before anything
// expensive.
const FlagsFastKeep = FlagRootSet | FlagDontCollect

// flagNames is ordered by bit position.
var flagNames = []string{
	"Unreachable",
	"RootSet",
	"Garbage",
	"ClusterRoot",
	"ReachableInCluster",
	"AsyncLoading",
	"DontCollect",
}

// Has reports whether all bits of q are set.
func (f Flags) Has(q Flags) bool {
	return f&q == q
}

// HasAny reports whether any bit of q is set.
func (f Flags) HasAny(q Flags) bool {
	return f&q != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
