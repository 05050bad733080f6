package cluster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/tracegc/internal/logger"
	"github.com/marmos91/tracegc/pkg/objtable"
)

// ErrNoSpace is returned by Create when the cluster store cannot grow.
var ErrNoSpace = errors.New("cluster: store full")

// Cluster is one group of objects treated as a single GC unit.
type Cluster struct {
	// Slot is this cluster's index in the store, > 0.
	Slot int32

	// RootIndex is the object table index of the cluster root.
	RootIndex int32

	// Objects are the member object indices, excluding the root. Every
	// member's owner index equals RootIndex for the cluster's lifetime.
	Objects []int32

	// MutableObjects are members whose references may be reassigned at
	// runtime; they are exempt from reference verification.
	MutableObjects map[int32]struct{}

	// ReferencedClusters are slot indices of other clusters this cluster
	// references. Keeping this cluster transitively keeps all of them.
	ReferencedClusters map[int32]struct{}

	// PendingLoad are members that were still async-loading when the
	// cluster was created. They are exempt from reference verification
	// until NotifyLoaded clears them; the exemption is transient, not
	// permanent.
	PendingLoad map[int32]struct{}

	dissolved bool
}

// Store owns every cluster. All mutation goes through its mutex; flag
// transitions on member records use the table's atomic accessors so they
// remain safe against the parallel mark phase.
type Store struct {
	mu        sync.Mutex
	table     objtable.Store
	clusters  []*Cluster // slot 0 unused
	freeSlots []int32

	// pendingReset holds clusters dissolved during a parallel gather pass.
	// Their members keep their owner index until FinishDissolutions so the
	// concurrent shard scan still recognizes them as cluster members.
	pendingReset []*Cluster
}

// NewStore creates an empty cluster store over the given object table.
func NewStore(table objtable.Store) *Store {
	return &Store{
		table:    table,
		clusters: make([]*Cluster, 1),
	}
}

// Create collapses root and members into a new cluster and returns its slot.
// Members still async-loading at creation time are recorded in the
// pending-load set. referenced lists slots of clusters this cluster points
// into.
func (s *Store) Create(rootIdx int32, members, mutableMembers, referenced []int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.table.Record(rootIdx)
	if root == nil {
		return 0, fmt.Errorf("cluster: root %d is not a live object", rootIdx)
	}
	if root.ClusterIndex() != 0 {
		return 0, fmt.Errorf("cluster: root %d already belongs to a cluster", rootIdx)
	}

	c := &Cluster{
		RootIndex:          rootIdx,
		Objects:            append([]int32(nil), members...),
		MutableObjects:     make(map[int32]struct{}, len(mutableMembers)),
		ReferencedClusters: make(map[int32]struct{}, len(referenced)),
		PendingLoad:        make(map[int32]struct{}),
	}
	for _, m := range mutableMembers {
		c.MutableObjects[m] = struct{}{}
	}
	for _, r := range referenced {
		c.ReferencedClusters[r] = struct{}{}
	}

	for _, m := range members {
		rec := s.table.Record(m)
		if rec == nil {
			return 0, fmt.Errorf("cluster: member %d is not a live object", m)
		}
		if rec.ClusterIndex() != 0 {
			return 0, fmt.Errorf("cluster: member %d already belongs to a cluster", m)
		}
		if rec.HasAnyFlags(objtable.FlagAsyncLoading) {
			c.PendingLoad[m] = struct{}{}
		}
	}

	slot := s.allocSlotLocked(c)
	c.Slot = slot

	root.SetFlags(objtable.FlagClusterRoot)
	root.SetClusterIndex(-slot)
	for _, m := range members {
		s.table.Record(m).SetClusterIndex(rootIdx)
	}

	logger.Debug("cluster created",
		logger.KeyClusterIndex, slot,
		logger.KeyClusterRoot, rootIdx,
		logger.KeyObjects, len(members),
		"pending_load", len(c.PendingLoad))
	return slot, nil
}

func (s *Store) allocSlotLocked(c *Cluster) int32 {
	if n := len(s.freeSlots); n > 0 {
		slot := s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
		s.clusters[slot] = c
		return slot
	}
	s.clusters = append(s.clusters, c)
	return int32(len(s.clusters) - 1)
}

// Cluster returns the cluster at slot, or nil if the slot is free.
func (s *Store) Cluster(slot int32) *Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusterLocked(slot)
}

func (s *Store) clusterLocked(slot int32) *Cluster {
	if slot <= 0 || int(slot) >= len(s.clusters) {
		return nil
	}
	return s.clusters[slot]
}

// ReferencedClusters returns the slots of clusters the cluster at slot
// references.
func (s *Store) ReferencedClusters(slot int32) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.clusterLocked(slot)
	if c == nil {
		return nil
	}
	out := make([]int32, 0, len(c.ReferencedClusters))
	for r := range c.ReferencedClusters {
		out = append(out, r)
	}
	return out
}

// DissolveClusterAndMarkUnreachable dissolves the cluster rooted at rootIdx:
// clears FlagClusterRoot on the root, marks every member not already proven
// reachable from outside as unreachable, and returns those freshly
// unreachable member indices. The cluster slot and the members' owner
// indices are reclaimed by FinishDissolutions, which must follow before the
// next mark phase.
//
// Dissolving a cluster twice is a logic error and panics: the second caller
// is operating on membership state that no longer exists.
func (s *Store) DissolveClusterAndMarkUnreachable(rootIdx int32, reason string) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.table.Record(rootIdx)
	if root == nil {
		panic(fmt.Sprintf("cluster: dissolving cluster of freed object %d", rootIdx))
	}
	owner := root.ClusterIndex()
	if owner >= 0 {
		panic(fmt.Sprintf("cluster: object %d is not a cluster root (owner index %d); double dissolution?", rootIdx, owner))
	}
	c := s.clusterLocked(-owner)
	if c == nil || c.dissolved {
		panic(fmt.Sprintf("cluster: double dissolution of cluster slot %d (root %d)", -owner, rootIdx))
	}
	c.dissolved = true

	root.ClearFlags(objtable.FlagClusterRoot)

	var fresh []int32
	for _, m := range c.Objects {
		rec := s.table.Record(m)
		if rec == nil {
			continue
		}
		if rec.HasAnyFlags(objtable.FlagReachableInCluster) {
			continue
		}
		rec.SetFlags(objtable.FlagUnreachable)
		fresh = append(fresh, m)
	}

	s.pendingReset = append(s.pendingReset, c)

	logger.Debug("cluster dissolved",
		logger.KeyClusterIndex, c.Slot,
		logger.KeyClusterRoot, rootIdx,
		logger.KeyObjects, len(c.Objects),
		logger.KeyUnreachable, len(fresh),
		"reason", reason)
	return fresh
}

// FinishDissolutions resets the owner index of every member of clusters
// dissolved since the last call and frees their slots. Must run after the
// parallel region that triggered the dissolutions has joined.
func (s *Store) FinishDissolutions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.pendingReset {
		if root := s.table.Record(c.RootIndex); root != nil {
			root.SetClusterIndex(0)
		}
		for _, m := range c.Objects {
			if rec := s.table.Record(m); rec != nil {
				rec.SetClusterIndex(0)
			}
		}
		s.freeSlotLocked(c.Slot)
	}
	s.pendingReset = s.pendingReset[:0]
}

// FreeCluster releases the slot of a cluster that was never dissolved (all
// members destroyed through other means). Freeing a free slot panics.
func (s *Store) FreeCluster(slot int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clusterLocked(slot) == nil {
		panic(fmt.Sprintf("cluster: FreeCluster(%d): slot already free", slot))
	}
	s.freeSlotLocked(slot)
}

func (s *Store) freeSlotLocked(slot int32) {
	s.clusters[slot] = nil
	s.freeSlots = append(s.freeSlots, slot)
}

// NotifyLoaded lifts the pending-load verification exemption for idx in
// every cluster. Called by the embedder once the object's load completes.
func (s *Store) NotifyLoaded(idx int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clusters[1:] {
		if c != nil {
			delete(c.PendingLoad, idx)
		}
	}
}

// Count returns the number of live clusters.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.clusters[1:] {
		if c != nil {
			n++
		}
	}
	return n
}
