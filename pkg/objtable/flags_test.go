package objtable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "None", Flags(0).String())
	assert.Equal(t, "Unreachable", FlagUnreachable.String())
	assert.Equal(t, "RootSet|DontCollect", FlagsFastKeep.String())
	assert.Equal(t, "Unreachable|Garbage|ClusterRoot",
		(FlagUnreachable | FlagGarbage | FlagClusterRoot).String())
}

func TestFlagsHas(t *testing.T) {
	f := FlagRootSet | FlagClusterRoot

	assert.True(t, f.Has(FlagRootSet))
	assert.True(t, f.Has(FlagRootSet|FlagClusterRoot))
	assert.False(t, f.Has(FlagRootSet|FlagGarbage))

	assert.True(t, f.HasAny(FlagRootSet|FlagGarbage))
	assert.False(t, f.HasAny(FlagGarbage|FlagUnreachable))
}

func TestRecordFlagTransitions(t *testing.T) {
	var rec Record

	rec.SetFlags(FlagUnreachable | FlagRootSet)
	assert.True(t, rec.Flags().Has(FlagUnreachable|FlagRootSet))

	rec.ClearFlags(FlagRootSet)
	assert.False(t, rec.HasAnyFlags(FlagRootSet))
	assert.True(t, rec.HasAnyFlags(FlagUnreachable))
}

func TestTryClearFlagsIsExactlyOnce(t *testing.T) {
	var rec Record
	rec.SetFlags(FlagUnreachable)

	assert.True(t, rec.TryClearFlags(FlagUnreachable))
	assert.False(t, rec.TryClearFlags(FlagUnreachable), "second clear must lose")
}

func TestTrySetFlagsIsExactlyOnce(t *testing.T) {
	var rec Record

	assert.True(t, rec.TrySetFlags(FlagReachableInCluster))
	assert.False(t, rec.TrySetFlags(FlagReachableInCluster))
}

// Exactly one of many racing workers may win the unreachable-clearing CAS;
// that is the property the parallel mark phase relies on.
func TestTryClearFlagsConcurrent(t *testing.T) {
	const workers = 16
	const rounds = 200

	for round := 0; round < rounds; round++ {
		var rec Record
		rec.SetFlags(FlagUnreachable)

		var wg sync.WaitGroup
		wins := make(chan struct{}, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if rec.TryClearFlags(FlagUnreachable) {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for range wins {
			won++
		}
		require.Equal(t, 1, won, "exactly one worker must win the transition")
	}
}

func TestClusterIndexEncoding(t *testing.T) {
	var rec Record

	assert.False(t, rec.IsClusterRoot())
	assert.False(t, rec.IsClusterMember())

	rec.SetClusterIndex(7)
	assert.True(t, rec.IsClusterMember())
	assert.False(t, rec.IsClusterRoot())

	rec.SetClusterIndex(-3)
	assert.True(t, rec.IsClusterRoot())
	assert.False(t, rec.IsClusterMember())
}
