package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tracegc/pkg/objtable"
)

func TestVerifyClusterAssumptions(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	root := alloc(t, tbl, 0)
	m1 := alloc(t, tbl, 0)
	m2 := alloc(t, tbl, 0)

	// Internal references only.
	m1.Object.(*part).pointAt(m2)
	m2.Object.(*part).pointAt(root)

	slot, err := s.Create(root.Index, []int32{m1.Index, m2.Index}, nil, nil)
	require.NoError(t, err)

	assert.NoError(t, s.VerifyClusterAssumptions(slot))
}

func TestVerifyDetectsEscapingReference(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	outside := alloc(t, tbl, 0)
	root := alloc(t, tbl, 0)
	m := alloc(t, tbl, 0)
	m.Object.(*part).pointAt(outside)

	slot, err := s.Create(root.Index, []int32{m.Index}, nil, nil)
	require.NoError(t, err)

	err = s.VerifyClusterAssumptions(slot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references object")
}

func TestVerifyExemptsMutableMembers(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	outside := alloc(t, tbl, 0)
	root := alloc(t, tbl, 0)
	m := alloc(t, tbl, 0)
	m.Object.(*part).pointAt(outside)

	slot, err := s.Create(root.Index, []int32{m.Index}, []int32{m.Index}, nil)
	require.NoError(t, err)

	// A mutable member may reference anything; it is walked instead.
	assert.NoError(t, s.VerifyClusterAssumptions(slot))
}

func TestVerifyExemptsPendingLoadsUntilNotified(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	outside := alloc(t, tbl, 0)
	root := alloc(t, tbl, 0)
	m := alloc(t, tbl, objtable.FlagAsyncLoading)
	m.Object.(*part).pointAt(outside)

	slot, err := s.Create(root.Index, []int32{m.Index}, nil, nil)
	require.NoError(t, err)

	// Still loading: the escaping reference is tolerated.
	assert.NoError(t, s.VerifyClusterAssumptions(slot))

	// The exemption is transient.
	s.NotifyLoaded(m.Index)
	assert.Error(t, s.VerifyClusterAssumptions(slot))
}

func TestVerifyAllowsPermanentTargets(t *testing.T) {
	tbl := objtable.New(16)
	s := NewStore(tbl)

	perm, err := tbl.AllocatePermanent(&part{})
	require.NoError(t, err)

	root := alloc(t, tbl, 0)
	m := alloc(t, tbl, 0)
	m.Object.(*part).pointAt(perm)

	slot, err := s.Create(root.Index, []int32{m.Index}, nil, nil)
	require.NoError(t, err)

	assert.NoError(t, s.VerifyClusterAssumptions(slot))
}

func TestVerifyAllowsReferencedClusters(t *testing.T) {
	tbl := objtable.New(32)
	s := NewStore(tbl)

	rootA := alloc(t, tbl, 0)
	mA := alloc(t, tbl, 0)
	slotA, err := s.Create(rootA.Index, []int32{mA.Index}, nil, nil)
	require.NoError(t, err)

	rootB := alloc(t, tbl, 0)
	mB := alloc(t, tbl, 0)
	// References into cluster A: the root and a member.
	mB.Object.(*part).pointAt(rootA)
	mB.Object.(*part).pointAt(mA)

	slotB, err := s.Create(rootB.Index, []int32{mB.Index}, nil, []int32{slotA})
	require.NoError(t, err)

	assert.NoError(t, s.VerifyClusterAssumptions(slotB))

	// The same shape without the declaration is a violation.
	rootC := alloc(t, tbl, 0)
	mC := alloc(t, tbl, 0)
	mC.Object.(*part).pointAt(mA)
	slotC, err := s.Create(rootC.Index, []int32{mC.Index}, nil, nil)
	require.NoError(t, err)

	assert.Error(t, s.VerifyClusterAssumptions(slotC))
}

func TestVerifyFreeSlot(t *testing.T) {
	s := NewStore(objtable.New(4))
	assert.Error(t, s.VerifyClusterAssumptions(3))
}
