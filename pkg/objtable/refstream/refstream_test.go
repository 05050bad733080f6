package refstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// widget exercises every descriptor kind in one class.
type widget struct {
	single Ref
	weak   Ref
	array  []Ref
	mapped map[string]*Ref
	inner  innerPart
	custom []Ref
}

type innerPart struct {
	left  Ref
	right Ref
}

var widgetClass = NewClass("Widget").
	Pointer("single", func(o Object) *Ref {
		return &o.(*widget).single
	}).
	Pointer("weak", func(o Object) *Ref {
		return &o.(*widget).weak
	}).
	PointerArray("array", func(o Object) []*Ref {
		w := o.(*widget)
		slots := make([]*Ref, len(w.array))
		for i := range w.array {
			slots[i] = &w.array[i]
		}
		return slots
	}).
	PointerMap("mapped", func(o Object) []*Ref {
		w := o.(*widget)
		slots := make([]*Ref, 0, len(w.mapped))
		for _, r := range w.mapped {
			slots = append(slots, r)
		}
		return slots
	}).
	Struct("inner", []Descriptor{
		{Kind: KindPointer, Name: "left", Slot: func(o Object) *Ref {
			return &o.(*widget).inner.left
		}},
		{Kind: KindPointer, Name: "right", Slot: func(o Object) *Ref {
			return &o.(*widget).inner.right
		}},
	}).
	Custom("custom", func(o Object, add func(*Ref)) {
		w := o.(*widget)
		for i := range w.custom {
			add(&w.custom[i])
		}
	}).
	OffThreadDestroy().
	Build()

func (w *widget) Class() *Class               { return widgetClass }
func (w *widget) BeginDestroy()               {}
func (w *widget) ReadyForFinishDestroy() bool { return true }
func (w *widget) FinishDestroy()              {}

func TestReplayVisitsEveryKind(t *testing.T) {
	w := &widget{
		single: Ref{Index: 1, Serial: 1},
		weak:   Ref{Index: 8, Serial: 1, Weak: true},
		array:  []Ref{{Index: 2, Serial: 1}, {Index: 3, Serial: 1}},
		mapped: map[string]*Ref{"k": {Index: 4, Serial: 1}},
		inner: innerPart{
			left:  Ref{Index: 5, Serial: 1},
			right: Ref{Index: 6, Serial: 1},
		},
		custom: []Ref{{Index: 7, Serial: 1}},
	}

	visited := make(map[int32]string)
	Replay(widgetClass.Stream, w, func(name string, ref *Ref) {
		visited[ref.Index] = name
	})

	require.Len(t, visited, 7)
	assert.NotContains(t, visited, int32(8), "weak slot must be skipped")
	assert.Equal(t, "single", visited[1])
	assert.Equal(t, "array", visited[2])
	assert.Equal(t, "array", visited[3])
	assert.Equal(t, "mapped", visited[4])
	assert.Equal(t, "left", visited[5])
	assert.Equal(t, "right", visited[6])
	assert.Equal(t, "custom", visited[7])
}

func TestReplaySkipsWeakAndNilSlots(t *testing.T) {
	w := &widget{
		weak:   Ref{Index: 9, Serial: 1, Weak: true},
		array:  []Ref{{Index: 10, Serial: 1, Weak: true}},
		custom: []Ref{{Index: 11, Serial: 1, Weak: true}},
	}

	var visited []int32
	Replay(widgetClass.Stream, w, func(name string, ref *Ref) {
		visited = append(visited, ref.Index)
	})

	// Weak references never keep their target; the walker must not see them.
	// Null slots (index 0) are still visited: the collector filters those.
	for _, idx := range visited {
		assert.NotContains(t, []int32{9, 10, 11}, idx)
	}
}

func TestReplayReturnsMutableSlots(t *testing.T) {
	w := &widget{single: Ref{Index: 42, Serial: 3}}

	Replay(widgetClass.Stream, w, func(name string, ref *Ref) {
		if ref.Index == 42 {
			ref.Clear()
		}
	})

	// Clearing through the visited pointer must null the field in place,
	// which is what pending-kill elimination depends on.
	assert.True(t, w.single.IsNull())
	assert.Equal(t, uint32(0), w.single.Serial)
}

func TestRefIsNull(t *testing.T) {
	var nilRef *Ref
	assert.True(t, nilRef.IsNull())
	assert.True(t, (&Ref{}).IsNull())
	assert.False(t, (&Ref{Index: 1}).IsNull())
}

func TestBuilder(t *testing.T) {
	assert.Equal(t, "Widget", widgetClass.Name)
	assert.True(t, widgetClass.DestroyOffThreadSafe)
	require.Len(t, widgetClass.Stream, 6)
	assert.Equal(t, KindPointer, widgetClass.Stream[0].Kind)
	assert.Equal(t, KindPointerArray, widgetClass.Stream[2].Kind)
	assert.Equal(t, KindPointerMap, widgetClass.Stream[3].Kind)
	assert.Equal(t, KindStruct, widgetClass.Stream[4].Kind)
	assert.Equal(t, KindCustom, widgetClass.Stream[5].Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "pointer", KindPointer.String())
	assert.Equal(t, "pointer_array", KindPointerArray.String())
	assert.Equal(t, "pointer_map", KindPointerMap.String())
	assert.Equal(t, "struct", KindStruct.String())
	assert.Equal(t, "custom", KindCustom.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
