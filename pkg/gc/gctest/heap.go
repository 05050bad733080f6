package gctest

import (
	"fmt"
	"math/rand"

	"github.com/marmos91/tracegc/pkg/gc"
	"github.com/marmos91/tracegc/pkg/metrics"
	"github.com/marmos91/tracegc/pkg/objtable"
)

// Heap bundles an object table and a collector over it, with helpers for
// building graphs node by node or in bulk.
type Heap struct {
	Table     *objtable.Table
	Collector *gc.Collector

	nodes map[*Node]*objtable.Record
}

// NewHeap creates a heap with the given table capacity and collector config.
// Metrics are attached when the metrics registry has been initialized.
func NewHeap(capacity int, cfg gc.Config) *Heap {
	t := objtable.New(capacity)
	return &Heap{
		Table:     t,
		Collector: gc.New(t, nil, cfg, metrics.NewCollectorMetrics()),
		nodes:     make(map[*Node]*objtable.Record),
	}
}

// Add allocates n into the table with the given flags.
func (h *Heap) Add(n *Node, flags objtable.Flags) *objtable.Record {
	rec, err := h.Table.Allocate(n, flags)
	if err != nil {
		panic(fmt.Sprintf("gctest: allocate %q: %v", n.Name, err))
	}
	h.nodes[n] = rec
	return rec
}

// AddPermanent allocates n into the permanent pool.
func (h *Heap) AddPermanent(n *Node) *objtable.Record {
	rec, err := h.Table.AllocatePermanent(n)
	if err != nil {
		panic(fmt.Sprintf("gctest: allocate permanent %q: %v", n.Name, err))
	}
	h.nodes[n] = rec
	return rec
}

// NewRoot creates a node of NodeClass in the root set.
func (h *Heap) NewRoot(name string) *Node {
	n := NewNode(name)
	h.Add(n, objtable.FlagRootSet)
	return n
}

// New creates an ordinary collectable node of NodeClass.
func (h *Heap) New(name string) *Node {
	n := NewNode(name)
	h.Add(n, 0)
	return n
}

// Record returns the table record holding n, or nil if n was never added.
func (h *Heap) Record(n *Node) *objtable.Record {
	return h.nodes[n]
}

// Index returns n's table index, or 0.
func (h *Heap) Index(n *Node) int32 {
	if rec := h.nodes[n]; rec != nil {
		return rec.Index
	}
	return 0
}

// Link points from.Next at to.
func (h *Heap) Link(from, to *Node) {
	from.Next = h.nodes[to].Ref()
}

// LinkChild points from.Child at to.
func (h *Heap) LinkChild(from, to *Node) {
	from.Child = h.nodes[to].Ref()
}

// LinkWeak points from.Next at to weakly.
func (h *Heap) LinkWeak(from, to *Node) {
	from.Next = h.nodes[to].WeakRef()
}

// Cluster collapses root and members into a cluster and returns its slot.
// mutable members are walked every cycle instead of being verified.
func (h *Heap) Cluster(root *Node, members []*Node, mutable []*Node) (int32, error) {
	memberIdx := make([]int32, len(members))
	for i, m := range members {
		memberIdx[i] = h.Index(m)
	}
	mutableIdx := make([]int32, len(mutable))
	for i, m := range mutable {
		mutableIdx[i] = h.Index(m)
	}
	return h.Collector.Clusters().Create(h.Index(root), memberIdx, mutableIdx, nil)
}

// Alive reports whether n still occupies its slot.
func (h *Heap) Alive(n *Node) bool {
	rec := h.nodes[n]
	return rec != nil && h.Table.Record(rec.Index) != nil
}

// GraphSpec describes a bulk-generated object graph for benchmarks and the
// simulation CLI.
type GraphSpec struct {
	// Objects is the total node count.
	Objects int

	// Roots is how many of them are allocated into the root set.
	Roots int

	// Fanout is the number of outgoing links per node.
	Fanout int

	// GarbageRatio is the fraction of non-root nodes left unlinked from any
	// root, i.e. collectable garbage. 0.25 means roughly a quarter of the
	// heap dies per cycle.
	GarbageRatio float64

	// ClusterSize > 1 groups reachable nodes into clusters of this size.
	ClusterSize int

	// OffThreadRatio is the fraction of nodes using ResourceClass.
	OffThreadRatio float64

	// Seed drives the deterministic graph shape.
	Seed int64
}

// Populate fills the heap per spec and returns the generated nodes. Nodes in
// the live partition are linked so they are reachable from some root; nodes
// in the garbage partition link only among themselves.
func (h *Heap) Populate(spec GraphSpec) []*Node {
	if spec.Roots <= 0 {
		spec.Roots = 1
	}
	if spec.Fanout <= 0 {
		spec.Fanout = 2
	}
	rng := rand.New(rand.NewSource(spec.Seed))

	nodes := make([]*Node, 0, spec.Objects)
	for i := 0; i < spec.Objects; i++ {
		var n *Node
		name := fmt.Sprintf("n%d", i)
		if rng.Float64() < spec.OffThreadRatio {
			n = NewResource(name)
		} else {
			n = NewNode(name)
		}
		var flags objtable.Flags
		if i < spec.Roots {
			flags = objtable.FlagRootSet
		}
		h.Add(n, flags)
		nodes = append(nodes, n)
	}

	garbageFrom := spec.Objects
	if spec.GarbageRatio > 0 {
		garbageFrom = spec.Objects - int(float64(spec.Objects-spec.Roots)*spec.GarbageRatio)
		if garbageFrom < spec.Roots {
			garbageFrom = spec.Roots
		}
	}

	// Live partition: every node gets Fanout links to earlier live nodes,
	// which chains everything back to the roots.
	for i := spec.Roots; i < garbageFrom; i++ {
		src := nodes[rng.Intn(i)]
		src.AddLink(h.nodes[nodes[i]].Ref())
		for f := 1; f < spec.Fanout; f++ {
			nodes[i].AddLink(h.nodes[nodes[rng.Intn(garbageFrom)]].Ref())
		}
	}

	// Garbage partition: internal links only, including cycles.
	for i := garbageFrom; i < spec.Objects; i++ {
		for f := 0; f < spec.Fanout; f++ {
			j := garbageFrom + rng.Intn(spec.Objects-garbageFrom)
			nodes[i].AddLink(h.nodes[nodes[j]].Ref())
		}
	}

	if spec.ClusterSize > 1 {
		h.clusterize(nodes[spec.Roots:garbageFrom], spec.ClusterSize)
	}
	return nodes
}

// clusterize groups consecutive unclustered live nodes into clusters.
// Generated graphs link freely across cluster boundaries, so every node is
// declared mutable: the walker still traverses their references while
// reachability of the group collapses onto the root.
func (h *Heap) clusterize(live []*Node, size int) {
	for i := 0; i+size <= len(live); i += size {
		root := live[i]
		members := live[i+1 : i+size]
		for _, m := range members {
			root.AddExtra(h.nodes[m].Ref())
		}
		mutable := append([]*Node{root}, members...)
		if _, err := h.Cluster(root, members, mutable); err != nil {
			// Node already claimed by an earlier cluster; skip.
			continue
		}
	}
}
