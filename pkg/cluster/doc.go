// Package cluster implements the cluster store: groups of densely
// interconnected objects collapsed into a single GC-visible unit.
//
// A cluster has a root object, a set of member objects, and a set of other
// clusters it references. During the mark phase the collector treats the
// whole cluster as one node: keeping the root keeps every member and,
// transitively, every referenced cluster. Members are never individually
// marked unreachable.
//
// A cluster is dissolved when its root or any member becomes garbage,
// because the cross-cluster reference invariants can no longer be
// guaranteed. Dissolution reverts members to ordinary collection candidates:
// every member not proven reachable from outside the cluster is marked
// unreachable. Dissolving the same cluster twice is a logic error and
// panics.
package cluster
