package objtable

import (
	"sync/atomic"

	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// Record is one slot of the object table. The table owns the slot; the
// collector only observes and transitions its flag bits.
type Record struct {
	// Index is the dense table index, > 0 for live records.
	Index int32

	// Object is the instance stored in this slot. Nil once freed.
	Object refstream.Object

	// flags is the atomic flag word.
	flags atomic.Uint32

	// cluster encodes cluster membership:
	//   0   not in any cluster
	//   > 0 member of the cluster whose root object has this index
	//   < 0 root of the cluster stored in slot -cluster
	cluster atomic.Int32

	// serial is bumped on Free so stale weak references read as null.
	serial atomic.Uint32
}

// Flags returns the current flag word.
func (r *Record) Flags() Flags {
	return Flags(r.flags.Load())
}

// HasAnyFlags reports whether any bit of q is currently set.
func (r *Record) HasAnyFlags(q Flags) bool {
	return r.Flags().HasAny(q)
}

// SetFlags sets the given bits. Plain read-modify-write; only legal outside
// parallel phases or on bits no other thread touches.
func (r *Record) SetFlags(q Flags) {
	for {
		old := r.flags.Load()
		if old&uint32(q) == uint32(q) {
			return
		}
		if r.flags.CompareAndSwap(old, old|uint32(q)) {
			return
		}
	}
}

// ClearFlags clears the given bits.
func (r *Record) ClearFlags(q Flags) {
	for {
		old := r.flags.Load()
		if old&uint32(q) == 0 {
			return
		}
		if r.flags.CompareAndSwap(old, old&^uint32(q)) {
			return
		}
	}
}

// TryClearFlags atomically clears the given bits and reports whether this
// call performed the transition. Exactly one concurrent caller observes
// true, which is what makes the "clear Unreachable, then enqueue" transition
// exactly-once in parallel mode.
func (r *Record) TryClearFlags(q Flags) bool {
	for {
		old := r.flags.Load()
		if old&uint32(q) == 0 {
			return false
		}
		if r.flags.CompareAndSwap(old, old&^uint32(q)) {
			return true
		}
	}
}

// TrySetFlags atomically sets the given bits and reports whether this call
// performed the transition (test-and-set semantics).
func (r *Record) TrySetFlags(q Flags) bool {
	for {
		old := r.flags.Load()
		if old&uint32(q) == uint32(q) {
			return false
		}
		if r.flags.CompareAndSwap(old, old|uint32(q)) {
			return true
		}
	}
}

// ClusterIndex returns the cluster encoding (see field comment).
func (r *Record) ClusterIndex() int32 {
	return r.cluster.Load()
}

// SetClusterIndex stores the cluster encoding.
func (r *Record) SetClusterIndex(v int32) {
	r.cluster.Store(v)
}

// IsClusterRoot reports whether this record roots a cluster.
func (r *Record) IsClusterRoot() bool {
	return r.cluster.Load() < 0
}

// IsClusterMember reports whether this record belongs to a cluster without
// rooting it.
func (r *Record) IsClusterMember() bool {
	return r.cluster.Load() > 0
}

// Serial returns the slot serial number.
func (r *Record) Serial() uint32 {
	return r.serial.Load()
}

// Ref returns a strong reference to this record's slot.
func (r *Record) Ref() refstream.Ref {
	return refstream.Ref{Index: r.Index, Serial: r.Serial()}
}

// WeakRef returns a weak reference to this record's slot. It resolves to
// null once the slot has been freed, even if the slot is later reused.
func (r *Record) WeakRef() refstream.Ref {
	return refstream.Ref{Index: r.Index, Serial: r.Serial(), Weak: true}
}
