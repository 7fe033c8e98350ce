//go:build !release

// Package memdebug is the debug overlay shared by every allocator layer:
// fill patterns for uninitialized/freed memory, and allocation tracking
// hooks. It compiles to no-ops under -tags release (see track_release.go).
package memdebug

import "github.com/gspizzico/Zn-sub000/internal/logx"

const (
	// UninitializedFill marks memory just handed out by an allocator.
	UninitializedFill byte = 0xDD
	// FreedFill marks memory just returned to an allocator.
	FreedFill byte = 0xFE
)

var log = logx.Category("MemoryDebug")

// FillUninitialized stamps b with the uninitialized-memory pattern.
func FillUninitialized(b []byte) {
	for i := range b {
		b[i] = UninitializedFill
	}
}

// FillFreed stamps b with the freed-memory pattern.
func FillFreed(b []byte) {
	for i := range b {
		b[i] = FreedFill
	}
}

// Tracker receives allocation/free notifications. A nil Tracker is valid
// and simply receives no calls; see Global below.
type Tracker interface {
	OnAlloc(addr uintptr, size uintptr)
	OnFree(addr uintptr)
}

// CountingTracker is the default tracking sink: it keeps running counters,
// grounded on the allocator-stats bookkeeping pattern used across the
// retrieved runtime-allocator sources (allocation count / free count /
// bytes allocated). BytesLive is the sum of the sizes reported to OnAlloc;
// OnFree receives no size and does not lower it.
type CountingTracker struct {
	Allocations uint64
	Frees       uint64
	BytesLive   int64
}

func (t *CountingTracker) OnAlloc(addr uintptr, size uintptr) {
	t.Allocations++
	t.BytesLive += int64(size)
}

func (t *CountingTracker) OnFree(addr uintptr) {
	t.Frees++
}

// Global is the process-wide tracking sink installed by the global
// allocator façade. It starts as a CountingTracker so tracking is always
// available even before any explicit configuration.
var Global Tracker = &CountingTracker{}

// OnAlloc reports a successful allocation to the installed tracker.
func OnAlloc(addr uintptr, size uintptr) {
	if Global != nil {
		Global.OnAlloc(addr, size)
	}
}

// OnFree reports a successful free to the installed tracker.
func OnFree(addr uintptr) {
	if Global != nil {
		Global.OnFree(addr)
	}
}

func init() {
	log.Verbose("debug overlay active", "uninitializedFill", UninitializedFill, "freedFill", FreedFill)
}
