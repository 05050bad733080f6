package refstream

// Ref is a non-owning handle to an object table slot.
//
// Index is the dense table index of the target (0 means null). Serial is the
// slot serial number captured when the reference was created; weak references
// compare it against the live slot so that a reference to a freed (and
// possibly reused) slot reads as null instead of resolving to an unrelated
// object. Strong references are traced by the collector; weak references are
// not, and are invalidated implicitly when their target's slot is freed.
type Ref struct {
	Index  int32
	Serial uint32
	Weak   bool
}

// IsNull reports whether the reference points at nothing.
func (r *Ref) IsNull() bool {
	return r == nil || r.Index == 0
}

// Clear nulls the reference in place.
func (r *Ref) Clear() {
	r.Index = 0
	r.Serial = 0
}

// Object is the behavior the collector requires from every instance stored
// in the object table. Instances are owned by the embedder; the collector
// only drives the two-phase destruction protocol.
type Object interface {
	// Class returns the precomputed class description. Must never be nil
	// for a live object; a nil class encountered during a walk is a fatal
	// invariant violation.
	Class() *Class

	// BeginDestroy starts cooperative destruction. Called exactly once per
	// object per collection, in unreachable-list order. The object may kick
	// off asynchronous resource release here (e.g. a GPU fence).
	BeginDestroy()

	// ReadyForFinishDestroy reports whether asynchronous resource release
	// has completed. Must be non-blocking; the destroyer polls it across
	// ticks until it returns true.
	ReadyForFinishDestroy() bool

	// FinishDestroy completes destruction. Called exactly once, after
	// ReadyForFinishDestroy has returned true, before the slot is freed.
	FinishDestroy()
}

// KeepAliver is the optional expensive keep check. An object implementing it
// is kept alive for the current cycle when IsKeptAlive returns true, even if
// none of its flags would keep it. The fast flag check always runs first;
// this hook is only consulted for objects the flags would collect.
type KeepAliver interface {
	IsKeptAlive() bool
}

// Class describes a class of objects: its name, its reference-emission
// stream, and its destruction constraints.
type Class struct {
	// Name identifies the class in diagnostics and fatal messages.
	Name string

	// Stream is the precomputed reference-emission stream replayed for
	// every instance of this class during the mark phase.
	Stream []Descriptor

	// DestroyOffThreadSafe declares that instances may be physically freed
	// on the purge worker thread. Unsafe classes are always freed on the
	// calling thread.
	DestroyOffThreadSafe bool
}

// Kind discriminates the Descriptor tagged union.
type Kind uint8

const (
	// KindPointer is a single reference slot.
	KindPointer Kind = iota

	// KindPointerArray is a fixed or dynamic array of reference slots.
	KindPointerArray

	// KindPointerMap is a map whose values are reference slots. Keys are
	// never references; the accessor materializes the value slots.
	KindPointerMap

	// KindStruct is an inlined struct whose own stream is replayed against
	// the same instance.
	KindStruct

	// KindCustom is the escape hatch for types whose layout cannot be
	// statically described; the class supplies an emit callback.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindPointer:
		return "pointer"
	case KindPointerArray:
		return "pointer_array"
	case KindPointerMap:
		return "pointer_map"
	case KindStruct:
		return "struct"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Descriptor is one entry of a reference-emission stream. Exactly the fields
// implied by Kind are set:
//
//	KindPointer      Slot
//	KindPointerArray Slots
//	KindPointerMap   Slots
//	KindStruct       Inner
//	KindCustom       Emit
//
// Accessors return pointers into the instance so the collector can null a
// reference in place (pending-kill elimination).
type Descriptor struct {
	Kind Kind

	// Name is the field name, used only in diagnostics.
	Name string

	// Slot returns the single reference slot (KindPointer).
	Slot func(Object) *Ref

	// Slots returns every reference slot of an array or map field
	// (KindPointerArray, KindPointerMap).
	Slots func(Object) []*Ref

	// Inner is the stream of an inlined struct (KindStruct).
	Inner []Descriptor

	// Emit invokes add for every reference of a custom field (KindCustom).
	Emit func(obj Object, add func(*Ref))
}

// Replay walks a stream against obj, invoking visit for every reference
// slot. Weak references are skipped: they do not keep their target alive and
// are invalidated by slot serial instead of being traced.
func Replay(stream []Descriptor, obj Object, visit func(name string, ref *Ref)) {
	for i := range stream {
		d := &stream[i]
		switch d.Kind {
		case KindPointer:
			if ref := d.Slot(obj); ref != nil && !ref.Weak {
				visit(d.Name, ref)
			}
		case KindPointerArray, KindPointerMap:
			for _, ref := range d.Slots(obj) {
				if ref != nil && !ref.Weak {
					visit(d.Name, ref)
				}
			}
		case KindStruct:
			Replay(d.Inner, obj, visit)
		case KindCustom:
			d.Emit(obj, func(ref *Ref) {
				if ref != nil && !ref.Weak {
					visit(d.Name, ref)
				}
			})
		}
	}
}
