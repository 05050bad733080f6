package gc

import (
	"fmt"

	"github.com/marmos91/tracegc/pkg/objtable"
)

// invariantf reports an unrecoverable invariant violation. The object graph
// may be half-marked at this point, so there is no recovery path; the panic
// carries enough context (object index, class, cluster) to diagnose the
// corruption.
func invariantf(format string, args ...any) {
	panic("gc: invariant violation: " + fmt.Sprintf(format, args...))
}

// describeObject formats an object's identity for fatal messages.
func describeObject(store objtable.Store, idx int32) string {
	rec := store.Record(idx)
	if rec == nil {
		return fmt.Sprintf("object %d (freed slot)", idx)
	}
	class := "<nil class>"
	if rec.Object != nil && rec.Object.Class() != nil {
		class = rec.Object.Class().Name
	}
	return fmt.Sprintf("object %d class=%s flags=%s cluster=%d",
		idx, class, rec.Flags(), rec.ClusterIndex())
}
