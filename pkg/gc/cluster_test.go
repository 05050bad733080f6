package gc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tracegc/pkg/gc/gctest"
	"github.com/marmos91/tracegc/pkg/objtable"
)

func TestClusterKeptThroughRoot(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()

	root := h.NewRoot("root")
	cr := h.New("cluster-root")
	m1 := h.New("m1")
	m2 := h.New("m2")
	cr.AddExtra(h.Record(m1).Ref())
	cr.AddExtra(h.Record(m2).Ref())

	_, err := h.Cluster(cr, []*gctest.Node{m1, m2}, nil)
	require.NoError(t, err)

	h.Link(root, cr)
	h.Collector.CollectGarbage(context.Background(), 0, true)

	assert.True(t, h.Alive(cr))
	assert.True(t, h.Alive(m1))
	assert.True(t, h.Alive(m2))
	assert.Equal(t, 0, h.Collector.LastCycle().ClustersDissolved)
	assert.Equal(t, 1, h.Collector.Clusters().Count())
}

func TestClusterKeptThroughMemberReference(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()

	root := h.NewRoot("root")
	cr := h.New("cluster-root")
	m := h.New("m")
	cr.AddExtra(h.Record(m).Ref())
	_, err := h.Cluster(cr, []*gctest.Node{m}, nil)
	require.NoError(t, err)

	// The external reference lands on the member, not the root; the whole
	// cluster must still be reachable.
	h.Link(root, m)
	h.Collector.CollectGarbage(context.Background(), 0, true)

	assert.True(t, h.Alive(cr))
	assert.True(t, h.Alive(m))
	assert.True(t, h.Record(m).HasAnyFlags(objtable.FlagReachableInCluster))
}

func TestUnreachableClusterDiesAsUnit(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()

	h.NewRoot("root")
	cr := h.New("cluster-root")
	m1 := h.New("m1")
	m2 := h.New("m2")
	cr.AddExtra(h.Record(m1).Ref())
	cr.AddExtra(h.Record(m2).Ref())
	_, err := h.Cluster(cr, []*gctest.Node{m1, m2}, nil)
	require.NoError(t, err)

	h.Collector.CollectGarbage(context.Background(), 0, true)

	assert.False(t, h.Alive(cr))
	assert.False(t, h.Alive(m1))
	assert.False(t, h.Alive(m2))

	stats := h.Collector.LastCycle()
	assert.Equal(t, 3, stats.Unreachable)
	assert.Equal(t, 2, stats.ClusterMembers)
	assert.Equal(t, 1, stats.ClustersDissolved)
	assert.Equal(t, 0, h.Collector.Clusters().Count())
}

func TestGarbageRootDissolvesCluster(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()

	cr := h.New("cluster-root")
	m1 := h.New("m1")
	m2 := h.New("m2")
	cr.AddExtra(h.Record(m1).Ref())
	cr.AddExtra(h.Record(m2).Ref())
	_, err := h.Cluster(cr, []*gctest.Node{m1, m2}, nil)
	require.NoError(t, err)

	// Pending-kill on the root voids the whole cluster.
	h.Record(cr).SetFlags(objtable.FlagGarbage)
	h.Collector.CollectGarbage(context.Background(), 0, true)

	assert.False(t, h.Alive(cr))
	assert.False(t, h.Alive(m1))
	assert.False(t, h.Alive(m2))
	assert.Equal(t, 1, h.Collector.LastCycle().ClustersDissolved)
}

func TestKeptMemberSurvivesDissolution(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()
	ctx := context.Background()

	cr := h.New("cluster-root")
	kept := gctest.NewNode("kept-member")
	h.Add(kept, objtable.FlagRootSet)
	doomed := h.New("doomed-member")
	cr.AddExtra(h.Record(kept).Ref())
	cr.AddExtra(h.Record(doomed).Ref())
	_, err := h.Cluster(cr, []*gctest.Node{kept, doomed}, nil)
	require.NoError(t, err)

	// A garbage member dissolves the cluster; the kept member must outlive
	// it as an ordinary object.
	h.Record(doomed).SetFlags(objtable.FlagGarbage)
	h.Collector.CollectGarbage(ctx, 0, true)

	assert.True(t, h.Alive(kept))
	assert.False(t, h.Alive(doomed))
	assert.Equal(t, int32(0), h.Record(kept).ClusterIndex(), "dissolution must release membership")
	assert.Equal(t, 1, h.Collector.LastCycle().ClustersDissolved)

	// The settlement kept the old root alive for this cycle; with the
	// cluster gone and nothing referencing it, the next cycle collects it.
	assert.True(t, h.Alive(cr))
	h.Collector.CollectGarbage(ctx, 0, true)
	assert.False(t, h.Alive(cr))
	assert.True(t, h.Alive(kept))
}

func TestReferencedClustersAreKeptTransitively(t *testing.T) {
	h := newTestHeap(64)
	defer h.Collector.Close()

	rootA := h.New("root-a")
	mA := h.New("m-a")
	rootA.AddExtra(h.Record(mA).Ref())
	slotA, err := h.Collector.Clusters().Create(h.Index(rootA), []int32{h.Index(mA)}, nil, nil)
	require.NoError(t, err)

	rootB := h.New("root-b")
	mB := h.New("m-b")
	rootB.AddExtra(h.Record(mB).Ref())
	mB.AddLink(h.Record(rootA).Ref())
	_, err = h.Collector.Clusters().Create(h.Index(rootB), []int32{h.Index(mB)}, nil, []int32{slotA})
	require.NoError(t, err)

	root := h.NewRoot("root")
	h.Link(root, rootB)

	h.Collector.CollectGarbage(context.Background(), 0, true)

	// Keeping B keeps A without walking B's members.
	assert.True(t, h.Alive(rootA))
	assert.True(t, h.Alive(mA))
	assert.True(t, h.Alive(rootB))
	assert.True(t, h.Alive(mB))
	assert.Equal(t, 2, h.Collector.Clusters().Count())
}

func TestMutableMembersAreWalked(t *testing.T) {
	h := newTestHeap(32)
	defer h.Collector.Close()

	cr := h.New("cluster-root")
	m := h.New("mutable-member")
	outside := h.New("outside")
	cr.AddExtra(h.Record(m).Ref())
	// The mutable member acquired a reference after cluster creation.
	h.Link(m, outside)
	_, err := h.Cluster(cr, []*gctest.Node{m}, []*gctest.Node{m})
	require.NoError(t, err)

	root := h.NewRoot("root")
	h.Link(root, cr)

	h.Collector.CollectGarbage(context.Background(), 0, true)

	// Without the mutable walk, outside would have been collected.
	assert.True(t, h.Alive(outside))
}
