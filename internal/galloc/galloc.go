// Package galloc implements the process-wide GlobalAllocator façade: the
// single entry point every other package in a hosting application calls
// through, lazily constructing the full multi-strategy allocator on first
// use or, when configured, staying on the simpler bootstrap allocator for
// the whole process lifetime.
package galloc

import (
	"sync"
	"sync/atomic"

	"github.com/gspizzico/Zn-sub000/internal/logx"
	"github.com/gspizzico/Zn-sub000/internal/toplevel"
)

var log = logx.Category("GlobalAllocator")

// GlobalAllocator is the process-wide façade. There is exactly one
// meaningful instance, Global, but the type is exported so tests can
// construct isolated instances.
type GlobalAllocator struct {
	mu               sync.Mutex
	primary          *toplevel.TopAllocator
	defaultAllocator defaultAllocator
	useDefaultOnly   bool
	isConstructing   int32 // atomic bootstrap guard
	constructed      bool
}

// Global is the process-wide GlobalAllocator. Bootstrap and Malloc/Free
// operate on it; most callers never need to touch a GlobalAllocator value
// directly.
var Global = &GlobalAllocator{}

// Bootstrap configures Global before its first allocation. Passing
// useDefaultMallocOnly true pins the process to the bootstrap
// defaultAllocator for its entire lifetime — the Go analogue of the
// source's "-use-default-malloc" flag, useful when diagnosing whether a
// bug lives in the multi-strategy allocator or elsewhere. Calling
// Bootstrap after construction has already happened has no effect on the
// strategy already in use; it only logs a warning.
func Bootstrap(useDefaultMallocOnly bool) {
	Global.mu.Lock()
	defer Global.mu.Unlock()
	if Global.constructed {
		log.Warning("Bootstrap called after GlobalAllocator was already constructed; ignoring")
		return
	}
	Global.useDefaultOnly = useDefaultMallocOnly
}

// ensureConstructed builds the primary TopAllocator on first use, guarded
// so that a reentrant call during construction (the primary allocator's
// own setup allocating through the same façade) falls back to the
// bootstrap allocator instead of deadlocking or recursing.
func (g *GlobalAllocator) ensureConstructed() {
	if g.constructed {
		return
	}
	if !atomic.CompareAndSwapInt32(&g.isConstructing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&g.isConstructing, 0)

	if g.useDefaultOnly {
		g.constructed = true
		return
	}

	top, err := toplevel.New(toplevel.DefaultConfig())
	if err != nil {
		log.Fatal("failed to construct the primary allocator; falling back permanently is not safe, aborting", "err", err)
	}
	g.primary = top
	g.constructed = true
}

// usingDefault reports whether g is (still, or permanently) running on the
// bootstrap defaultAllocator: either because it is mid-construction
// (isConstructing != 0) and must not reenter the primary allocator, or
// because Bootstrap(true) pinned it there.
func (g *GlobalAllocator) usingDefault() bool {
	return g.primary == nil || atomic.LoadInt32(&g.isConstructing) != 0
}

// Malloc returns a payload address for size bytes, 8-byte aligned —
// every strategy this façade routes to already guarantees that.
func (g *GlobalAllocator) Malloc(size uintptr) (uintptr, error) {
	g.ensureConstructed()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.usingDefault() {
		return g.defaultAllocator.mallocPtr(int(size))
	}

	return g.primary.Malloc(size)
}

// Free releases an address previously returned by Malloc.
func (g *GlobalAllocator) Free(addr uintptr) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.usingDefault() {
		return g.defaultAllocator.freePtr(addr)
	}
	return g.primary.Free(addr)
}

// Malloc allocates through Global.
func Malloc(size uintptr) (uintptr, error) { return Global.Malloc(size) }

// Free releases through Global.
func Free(addr uintptr) error { return Global.Free(addr) }
