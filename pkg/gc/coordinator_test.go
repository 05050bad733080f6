package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusiveLock(t *testing.T) {
	c := NewCoordinator()

	c.AcquireExclusive()
	assert.False(t, c.TryAcquireExclusive())
	c.ReleaseExclusive()

	assert.True(t, c.TryAcquireExclusive())
	c.ReleaseExclusive()
}

func TestExclusiveLockIsGoroutineAgnostic(t *testing.T) {
	c := NewCoordinator()

	// A hold taken on one goroutine must exclude every other goroutine; there
	// is no ownership shortcut for callers on the collection path.
	c.AcquireExclusive()

	got := make(chan bool)
	go func() { got <- c.TryAcquireExclusive() }()
	assert.False(t, <-got)

	c.ReleaseExclusive()
	go func() { got <- c.TryAcquireExclusive() }()
	require.True(t, <-got)
	c.ReleaseExclusive()
}

func TestReaderGateBlocksMark(t *testing.T) {
	c := NewCoordinator()

	c.BeginTableRead()
	assert.False(t, c.tryBeginMark())
	c.EndTableRead()

	require.True(t, c.tryBeginMark())
	assert.False(t, c.tryBeginMark(), "mark phase is not reentrant")
	c.endMark()
}

func TestMarkBlocksNewReaders(t *testing.T) {
	c := NewCoordinator()

	require.True(t, c.tryBeginMark())
	assert.False(t, c.TryBeginTableRead())
	c.endMark()

	assert.True(t, c.TryBeginTableRead())
	c.EndTableRead()
}

// A collector waiting to mark must shut the door on new readers, or a stream
// of readers could starve it forever.
func TestWaitingMarkerHasPreference(t *testing.T) {
	c := NewCoordinator()

	c.BeginTableRead()

	marked := make(chan struct{})
	go func() {
		c.beginMark()
		close(marked)
	}()

	// Wait for the marker to register as waiting.
	require.Eventually(t, func() bool {
		c.gateMu.Lock()
		defer c.gateMu.Unlock()
		return c.waiting > 0
	}, time.Second, time.Millisecond)

	assert.False(t, c.TryBeginTableRead(), "new readers must queue behind a waiting marker")

	c.EndTableRead()

	select {
	case <-marked:
	case <-time.After(time.Second):
		t.Fatal("marker never acquired the gate")
	}

	c.endMark()
	assert.True(t, c.TryBeginTableRead())
	c.EndTableRead()
}

func TestUnbalancedEndTableReadPanics(t *testing.T) {
	c := NewCoordinator()
	assert.Panics(t, func() { c.EndTableRead() })
}
