package cluster

import (
	"fmt"

	"github.com/marmos91/tracegc/pkg/objtable"
	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// VerifyClusterAssumptions checks that every non-mutable member of the
// cluster at slot references only objects the cluster model can account
// for: objects inside the cluster, roots or members of a cluster listed in
// ReferencedClusters, or objects in the permanent pool.
//
// Members in the pending-load set are skipped: an object still loading may
// hold references that will only settle once the load completes. The
// exemption ends when NotifyLoaded removes the member from the set.
//
// Returns nil when the assumptions hold. This is a debug aid for cluster
// construction; the collector itself never calls it on the hot path.
func (s *Store) VerifyClusterAssumptions(slot int32) error {
	s.mu.Lock()
	c := s.clusterLocked(slot)
	if c == nil {
		s.mu.Unlock()
		return fmt.Errorf("cluster: verify: slot %d is free", slot)
	}
	members := append([]int32(nil), c.Objects...)
	s.mu.Unlock()

	for _, m := range members {
		s.mu.Lock()
		_, mutable := c.MutableObjects[m]
		_, pending := c.PendingLoad[m]
		s.mu.Unlock()
		if mutable || pending {
			continue
		}

		rec := s.table.Record(m)
		if rec == nil {
			continue
		}
		if err := s.verifyMemberRefs(c, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) verifyMemberRefs(c *Cluster, rec *objtable.Record) error {
	class := rec.Object.Class()
	if class == nil {
		return fmt.Errorf("cluster: verify: member %d has nil class", rec.Index)
	}

	var violation error
	refstream.Replay(class.Stream, rec.Object, func(name string, ref *refstream.Ref) {
		if violation != nil || ref.IsNull() {
			return
		}
		if s.refAllowed(c, ref.Index) {
			return
		}
		violation = fmt.Errorf(
			"cluster: verify: member %d (%s) field %q references object %d outside cluster %d and its referenced clusters",
			rec.Index, class.Name, name, ref.Index, c.Slot)
	})
	return violation
}

// refAllowed reports whether a reference from inside cluster c to target is
// consistent with the cluster model.
func (s *Store) refAllowed(c *Cluster, target int32) bool {
	if s.table.IsPermanent(target) {
		return true
	}
	rec := s.table.Record(target)
	if rec == nil {
		return false
	}

	switch owner := rec.ClusterIndex(); {
	case owner == 0:
		return false
	case owner > 0:
		// Member of some cluster: ours, or one we declare a reference to.
		if owner == c.RootIndex {
			return true
		}
		ownerRec := s.table.Record(owner)
		if ownerRec == nil {
			return false
		}
		return s.slotReferenced(c, -ownerRec.ClusterIndex())
	default:
		// A cluster root.
		if -owner == c.Slot {
			return true
		}
		return s.slotReferenced(c, -owner)
	}
}

func (s *Store) slotReferenced(c *Cluster, slot int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := c.ReferencedClusters[slot]
	return ok
}
