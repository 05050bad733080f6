package objtable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// ErrTableFull is returned by Allocate when the table has no free slot left.
// If this surfaces mid-collection it is propagated as fatal by the caller.
var ErrTableFull = errors.New("objtable: object table full")

// ErrPermanentPoolClosed is returned by AllocatePermanent after ordinary
// allocation has started. The permanent pool boundary must stay fixed so the
// collector's range check remains O(1).
var ErrPermanentPoolClosed = errors.New("objtable: permanent pool closed")

// Store is the capability interface the collector consumes. Table implements
// it; tests may substitute their own.
type Store interface {
	// Record returns the record at idx, or nil if the slot is free.
	// idx must be in [1, NumRecords].
	Record(idx int32) *Record

	// NumRecords returns the table's high-water mark. Valid indices are
	// 1..NumRecords; some of them may be free.
	NumRecords() int32

	// IsPermanent reports whether idx lies in the permanent pool. O(1).
	IsPermanent(idx int32) bool

	// Free releases the slot at idx. Freeing an already-free slot is a
	// fatal invariant violation.
	Free(idx int32)

	// Resolve returns the object a reference points at, or nil for null
	// references, freed slots, and stale weak references.
	Resolve(ref refstream.Ref) refstream.Object
}

// Table is the fixed-capacity in-memory object table.
type Table struct {
	mu sync.Mutex

	// records[0] is unused so index 0 can mean null.
	records []*Record

	// freeList holds indices of freed slots, reused LIFO.
	freeList []int32

	// permanentMax is the highest permanent index (0 = empty pool).
	permanentMax int32

	// permanentClosed is set once ordinary allocation starts.
	permanentClosed bool

	capacity int
}

// New creates a table holding at most capacity objects.
func New(capacity int) *Table {
	return &Table{
		records:  make([]*Record, 1, capacity+1),
		capacity: capacity,
	}
}

// AllocatePermanent places obj in the permanent pool. Permanent objects are
// never visited, marked, or collected. Must be called before any ordinary
// Allocate.
func (t *Table) AllocatePermanent(obj refstream.Object) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.permanentClosed {
		return nil, ErrPermanentPoolClosed
	}
	if len(t.records)-1 >= t.capacity {
		return nil, ErrTableFull
	}

	rec := &Record{
		Index:  int32(len(t.records)),
		Object: obj,
	}
	rec.serial.Store(1)
	t.records = append(t.records, rec)
	t.permanentMax = rec.Index
	return rec, nil
}

// Allocate places obj in the table with the given initial flags and returns
// its record. The first ordinary allocation freezes the permanent pool.
func (t *Table) Allocate(obj refstream.Object, flags Flags) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.permanentClosed = true

	var rec *Record
	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		rec = t.records[idx]
		rec.Object = obj
		rec.flags.Store(uint32(flags))
		rec.cluster.Store(0)
	} else {
		if len(t.records)-1 >= t.capacity {
			return nil, ErrTableFull
		}
		rec = &Record{
			Index:  int32(len(t.records)),
			Object: obj,
		}
		rec.serial.Store(1)
		rec.flags.Store(uint32(flags))
		t.records = append(t.records, rec)
	}
	return rec, nil
}

// Record returns the record at idx, or nil if the slot is free.
func (t *Table) Record(idx int32) *Record {
	if idx <= 0 || int(idx) >= len(t.records) {
		return nil
	}
	rec := t.records[idx]
	if rec == nil || rec.Object == nil {
		return nil
	}
	return rec
}

// NumRecords returns the table's high-water mark.
func (t *Table) NumRecords() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int32(len(t.records) - 1)
}

// IsPermanent reports whether idx lies in the permanent pool.
func (t *Table) IsPermanent(idx int32) bool {
	return idx > 0 && idx <= t.permanentMax
}

// Free releases the slot at idx. The record's serial is bumped so stale weak
// references resolve to null. Double-free panics: freeing a live slot twice
// means the destroyer visited an object twice, and continuing would risk
// freeing a live object.
func (t *Table) Free(idx int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx <= 0 || int(idx) >= len(t.records) {
		panic(fmt.Sprintf("objtable: Free(%d): index out of range [1, %d]", idx, len(t.records)-1))
	}
	if idx <= t.permanentMax {
		panic(fmt.Sprintf("objtable: Free(%d): slot is in the permanent pool", idx))
	}
	rec := t.records[idx]
	if rec.Object == nil {
		panic(fmt.Sprintf("objtable: Free(%d): double free", idx))
	}

	rec.Object = nil
	rec.flags.Store(0)
	rec.cluster.Store(0)
	rec.serial.Add(1)
	t.freeList = append(t.freeList, idx)
}

// Resolve returns the object ref points at, or nil for null references,
// freed slots, and references whose serial no longer matches (the target was
// destroyed and possibly replaced).
func (t *Table) Resolve(ref refstream.Ref) refstream.Object {
	if ref.Index == 0 {
		return nil
	}
	rec := t.Record(ref.Index)
	if rec == nil {
		return nil
	}
	if rec.Serial() != ref.Serial {
		return nil
	}
	return rec.Object
}

// IndexOf returns the record holding obj, or nil if absent. Linear scan;
// diagnostic use only.
func (t *Table) IndexOf(obj refstream.Object) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.records[1:] {
		if rec != nil && rec.Object == obj {
			return rec
		}
	}
	return nil
}

// NotifyLoaded clears FlagAsyncLoading on idx. The cluster store's
// NotifyLoaded must be called as well so pending-load verification
// exemptions are lifted; the collector's facade does both.
func (t *Table) NotifyLoaded(idx int32) {
	if rec := t.Record(idx); rec != nil {
		rec.ClearFlags(FlagAsyncLoading)
	}
}

// LiveCount returns the number of occupied slots. Diagnostic use.
func (t *Table) LiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records[1:] {
		if rec != nil && rec.Object != nil {
			n++
		}
	}
	return n
}
