package refstream

// SchemaBuilder assembles a Class and its reference-emission stream by hand.
// The reflection system that would normally precompute streams from type
// layouts is external; tests and the simulation CLI use this builder instead.
type SchemaBuilder struct {
	class *Class
}

// NewClass starts building a class with the given name.
func NewClass(name string) *SchemaBuilder {
	return &SchemaBuilder{class: &Class{Name: name}}
}

// Pointer adds a single-pointer field.
func (b *SchemaBuilder) Pointer(name string, slot func(Object) *Ref) *SchemaBuilder {
	b.class.Stream = append(b.class.Stream, Descriptor{
		Kind: KindPointer,
		Name: name,
		Slot: slot,
	})
	return b
}

// PointerArray adds an array-of-pointers field. The accessor handles both
// fixed and dynamic arrays.
func (b *SchemaBuilder) PointerArray(name string, slots func(Object) []*Ref) *SchemaBuilder {
	b.class.Stream = append(b.class.Stream, Descriptor{
		Kind:  KindPointerArray,
		Name:  name,
		Slots: slots,
	})
	return b
}

// PointerMap adds a map field whose values are pointers.
func (b *SchemaBuilder) PointerMap(name string, slots func(Object) []*Ref) *SchemaBuilder {
	b.class.Stream = append(b.class.Stream, Descriptor{
		Kind:  KindPointerMap,
		Name:  name,
		Slots: slots,
	})
	return b
}

// Struct adds an inlined struct field with its own stream.
func (b *SchemaBuilder) Struct(name string, inner []Descriptor) *SchemaBuilder {
	b.class.Stream = append(b.class.Stream, Descriptor{
		Kind:  KindStruct,
		Name:  name,
		Inner: inner,
	})
	return b
}

// Custom adds an add-referenced-objects escape hatch.
func (b *SchemaBuilder) Custom(name string, emit func(obj Object, add func(*Ref))) *SchemaBuilder {
	b.class.Stream = append(b.class.Stream, Descriptor{
		Kind: KindCustom,
		Name: name,
		Emit: emit,
	})
	return b
}

// OffThreadDestroy declares instances safe to free on the purge worker.
func (b *SchemaBuilder) OffThreadDestroy() *SchemaBuilder {
	b.class.DestroyOffThreadSafe = true
	return b
}

// Build returns the finished class.
func (b *SchemaBuilder) Build() *Class {
	return b.class
}
