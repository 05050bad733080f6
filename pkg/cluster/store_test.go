package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tracegc/pkg/objtable"
	"github.com/marmos91/tracegc/pkg/objtable/refstream"
)

// part is the test object; refs feed the reference stream verifier.
type part struct {
	refs []refstream.Ref
}

var partClass = refstream.NewClass("Part").
	Custom("refs", func(o refstream.Object, add func(*refstream.Ref)) {
		p := o.(*part)
		for i := range p.refs {
			add(&p.refs[i])
		}
	}).
	Build()

func (p *part) Class() *refstream.Class     { return partClass }
func (p *part) BeginDestroy()               {}
func (p *part) ReadyForFinishDestroy() bool { return true }
func (p *part) FinishDestroy()              {}

func (p *part) pointAt(rec *objtable.Record) {
	p.refs = append(p.refs, rec.Ref())
}

// alloc places a fresh part into the table and returns its record.
func alloc(t *testing.T, tbl *objtable.Table, flags objtable.Flags) *objtable.Record {
	t.Helper()
	rec, err := tbl.Allocate(&part{}, flags)
	require.NoError(t, err)
	return rec
}

func TestCreate(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	m1 := alloc(t, tbl, 0)
	m2 := alloc(t, tbl, 0)

	slot, err := s.Create(root.Index, []int32{m1.Index, m2.Index}, []int32{m2.Index}, nil)
	require.NoError(t, err)
	require.Greater(t, slot, int32(0))

	assert.True(t, root.IsClusterRoot())
	assert.Equal(t, -slot, root.ClusterIndex())
	assert.True(t, root.HasAnyFlags(objtable.FlagClusterRoot))

	assert.True(t, m1.IsClusterMember())
	assert.Equal(t, root.Index, m1.ClusterIndex())
	assert.Equal(t, root.Index, m2.ClusterIndex())

	c := s.Cluster(slot)
	require.NotNil(t, c)
	assert.Equal(t, root.Index, c.RootIndex)
	assert.ElementsMatch(t, []int32{m1.Index, m2.Index}, c.Objects)
	assert.Contains(t, c.MutableObjects, m2.Index)
	assert.NotContains(t, c.MutableObjects, m1.Index)

	assert.Equal(t, 1, s.Count())
}

func TestCreateRejectsDeadOrClaimedObjects(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	m := alloc(t, tbl, 0)
	_, err := s.Create(root.Index, []int32{m.Index}, nil, nil)
	require.NoError(t, err)

	// Root already in a cluster.
	_, err = s.Create(root.Index, nil, nil, nil)
	assert.Error(t, err)

	// Member already in a cluster.
	other := alloc(t, tbl, 0)
	_, err = s.Create(other.Index, []int32{m.Index}, nil, nil)
	assert.Error(t, err)

	// Freed root.
	dead := alloc(t, tbl, 0)
	tbl.Free(dead.Index)
	_, err = s.Create(dead.Index, nil, nil, nil)
	assert.Error(t, err)
}

func TestCreateRecordsPendingLoads(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	loading := alloc(t, tbl, objtable.FlagAsyncLoading)
	loaded := alloc(t, tbl, 0)

	slot, err := s.Create(root.Index, []int32{loading.Index, loaded.Index}, nil, nil)
	require.NoError(t, err)

	c := s.Cluster(slot)
	assert.Contains(t, c.PendingLoad, loading.Index)
	assert.NotContains(t, c.PendingLoad, loaded.Index)

	s.NotifyLoaded(loading.Index)
	assert.NotContains(t, c.PendingLoad, loading.Index)
}

func TestDissolveMarksMembersUnreachable(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	m1 := alloc(t, tbl, 0)
	m2 := alloc(t, tbl, 0)
	slot, err := s.Create(root.Index, []int32{m1.Index, m2.Index}, nil, nil)
	require.NoError(t, err)

	// m2 was proven reachable from outside during the mark phase.
	m2.SetFlags(objtable.FlagReachableInCluster)

	fresh := s.DissolveClusterAndMarkUnreachable(root.Index, "test")
	assert.Equal(t, []int32{m1.Index}, fresh)
	assert.True(t, m1.HasAnyFlags(objtable.FlagUnreachable))
	assert.False(t, m2.HasAnyFlags(objtable.FlagUnreachable))
	assert.False(t, root.HasAnyFlags(objtable.FlagClusterRoot))

	// Owner indices survive until FinishDissolutions so a concurrent shard
	// scan still recognizes the members.
	assert.True(t, m1.IsClusterMember())
	assert.True(t, m2.IsClusterMember())

	s.FinishDissolutions()
	assert.Equal(t, int32(0), root.ClusterIndex())
	assert.Equal(t, int32(0), m1.ClusterIndex())
	assert.Equal(t, int32(0), m2.ClusterIndex())
	assert.Nil(t, s.Cluster(slot))
	assert.Equal(t, 0, s.Count())
}

func TestDoubleDissolvePanics(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	_, err := s.Create(root.Index, nil, nil, nil)
	require.NoError(t, err)

	s.DissolveClusterAndMarkUnreachable(root.Index, "first")
	assert.Panics(t, func() {
		s.DissolveClusterAndMarkUnreachable(root.Index, "second")
	})
}

func TestDissolveNonRootPanics(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	plain := alloc(t, tbl, 0)
	assert.Panics(t, func() {
		s.DissolveClusterAndMarkUnreachable(plain.Index, "not a root")
	})
}

func TestFreeCluster(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	slot, err := s.Create(root.Index, nil, nil, nil)
	require.NoError(t, err)

	s.FreeCluster(slot)
	assert.Nil(t, s.Cluster(slot))
	assert.Panics(t, func() { s.FreeCluster(slot) })
}

func TestSlotReuse(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	r1 := alloc(t, tbl, 0)
	slot1, err := s.Create(r1.Index, nil, nil, nil)
	require.NoError(t, err)

	s.DissolveClusterAndMarkUnreachable(r1.Index, "test")
	s.FinishDissolutions()

	r2 := alloc(t, tbl, 0)
	slot2, err := s.Create(r2.Index, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, slot1, slot2, "freed slot should be reused")
}

func TestReferencedClusters(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	rootA := alloc(t, tbl, 0)
	slotA, err := s.Create(rootA.Index, nil, nil, nil)
	require.NoError(t, err)

	rootB := alloc(t, tbl, 0)
	slotB, err := s.Create(rootB.Index, nil, nil, []int32{slotA})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int32{slotA}, s.ReferencedClusters(slotB))
	assert.Empty(t, s.ReferencedClusters(slotA))
}
