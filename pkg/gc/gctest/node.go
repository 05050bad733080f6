// Package gctest provides a synthetic object graph for exercising the
// collector: a test object type with every reference stream kind, and a heap
// builder used by the gc tests and the simulation CLI.
package gctest

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// NodeClass is the default synthetic class. Its stream exercises single
// pointers, a pointer array, a pointer map, and a custom emitter.
var NodeClass = buildNodeClass("Node", false)

// ResourceClass is a class whose instances are safe to destroy on the purge
// worker goroutine.
var ResourceClass = buildNodeClass("Resource", true)

func buildNodeClass(name string, offThread bool) *refstream.Class {
	b := refstream.NewClass(name).
		Pointer("next", func(o refstream.Object) *refstream.Ref {
			return &o.(*Node).Next
		}).
		Pointer("child", func(o refstream.Object) *refstream.Ref {
			return &o.(*Node).Child
		}).
		PointerArray("links", func(o refstream.Object) []*refstream.Ref {
			n := o.(*Node)
			slots := make([]*refstream.Ref, len(n.Links))
			for i := range n.Links {
				slots[i] = &n.Links[i]
			}
			return slots
		}).
		PointerMap("attached", func(o refstream.Object) []*refstream.Ref {
			n := o.(*Node)
			if len(n.Attached) == 0 {
				return nil
			}
			// Deterministic order keeps walk traces reproducible.
			keys := make([]string, 0, len(n.Attached))
			for k := range n.Attached {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			slots := make([]*refstream.Ref, 0, len(keys))
			for _, k := range keys {
				slots = append(slots, n.Attached[k])
			}
			return slots
		}).
		Custom("extra", func(o refstream.Object, add func(*refstream.Ref)) {
			n := o.(*Node)
			for i := range n.Extra {
				add(&n.Extra[i])
			}
		})
	if offThread {
		b.OffThreadDestroy()
	}
	return b.Build()
}

// Node is the synthetic heap object. Reference fields are public so tests
// can rewire the graph between collections, the way live gameplay code
// reassigns properties between cycles.
type Node struct {
	// Name identifies the node in test failures.
	Name string

	// Next and Child are single strong (or weak) references.
	Next  refstream.Ref
	Child refstream.Ref

	// Links is a dynamic array of references.
	Links []refstream.Ref

	// Attached is a map whose values are references.
	Attached map[string]*refstream.Ref

	// Extra feeds the custom emitter.
	Extra []refstream.Ref

	class *refstream.Class

	keepAlive     atomic.Bool
	notReadyPolls atomic.Int32

	begun    atomic.Bool
	finished atomic.Bool
}

// NewNode creates a detached node of NodeClass.
func NewNode(name string) *Node {
	return &Node{Name: name, class: NodeClass}
}

// NewResource creates a detached node of ResourceClass.
func NewResource(name string) *Node {
	return &Node{Name: name, class: ResourceClass}
}

// Class implements refstream.Object.
func (n *Node) Class() *refstream.Class {
	return n.class
}

// BeginDestroy implements refstream.Object. Calling it twice is a protocol
// violation the tests want loudly.
func (n *Node) BeginDestroy() {
	if !n.begun.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("gctest: BeginDestroy called twice on %q", n.Name))
	}
}

// ReadyForFinishDestroy implements refstream.Object. A node configured with
// DelayFinish reports not-ready for that many polls, simulating an async
// resource release.
func (n *Node) ReadyForFinishDestroy() bool {
	if !n.begun.Load() {
		panic(fmt.Sprintf("gctest: ReadyForFinishDestroy before BeginDestroy on %q", n.Name))
	}
	for {
		left := n.notReadyPolls.Load()
		if left <= 0 {
			return true
		}
		if n.notReadyPolls.CompareAndSwap(left, left-1) {
			return false
		}
	}
}

// FinishDestroy implements refstream.Object.
func (n *Node) FinishDestroy() {
	if !n.begun.Load() {
		panic(fmt.Sprintf("gctest: FinishDestroy before BeginDestroy on %q", n.Name))
	}
	if !n.finished.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("gctest: FinishDestroy called twice on %q", n.Name))
	}
}

// IsKeptAlive implements refstream.KeepAliver.
func (n *Node) IsKeptAlive() bool {
	return n.keepAlive.Load()
}

// SetKeepAlive toggles the expensive keep check result.
func (n *Node) SetKeepAlive(v bool) {
	n.keepAlive.Store(v)
}

// DelayFinish makes ReadyForFinishDestroy report false for the next n polls.
func (n *Node) DelayFinish(polls int) {
	n.notReadyPolls.Store(int32(polls))
}

// DestroyBegun reports whether BeginDestroy has run.
func (n *Node) DestroyBegun() bool {
	return n.begun.Load()
}

// Destroyed reports whether FinishDestroy has run.
func (n *Node) Destroyed() bool {
	return n.finished.Load()
}

// Attach adds a named map reference to target.
func (n *Node) Attach(key string, ref refstream.Ref) {
	if n.Attached == nil {
		n.Attached = make(map[string]*refstream.Ref)
	}
	r := ref
	n.Attached[key] = &r
}

// AddLink appends a reference to the Links array.
func (n *Node) AddLink(ref refstream.Ref) {
	n.Links = append(n.Links, ref)
}

// AddExtra appends a reference reported through the custom emitter.
func (n *Node) AddExtra(ref refstream.Ref) {
	n.Extra = append(n.Extra, ref)
}

var _ refstream.Object = (*Node)(nil)
var _ refstream.KeepAliver = (*Node)(nil)
