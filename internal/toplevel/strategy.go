// Package toplevel implements the L3 multi-strategy allocator: requests
// are routed by size to one of four strategies (tiny, small/bucket,
// medium, direct), each backed by a lower-level allocator package.
package toplevel

import "github.com/gspizzico/Zn-sub000/internal/logx"

var log = logx.Category("TopAllocator")

// strategy is the closed set of size-class handlers a TopAllocator
// dispatches to. It is never implemented outside this package.
type strategy interface {
	// tryMalloc returns a payload address for size bytes, or an error if
	// this strategy cannot (or should not) serve the request.
	tryMalloc(size uintptr) (uintptr, error)
	// tryFree frees addr if this strategy owns it, reporting whether it
	// did.
	tryFree(addr uintptr) bool
	// owns reports whether addr was handed out by this strategy.
	owns(addr uintptr) bool
	// name identifies the strategy for logging/stats.
	name() string
}
