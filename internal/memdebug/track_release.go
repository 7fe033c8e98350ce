//go:build release

package memdebug

const (
	UninitializedFill byte = 0xDD
	FreedFill         byte = 0xFE
)

// FillUninitialized is a no-op in release builds.
func FillUninitialized(b []byte) {}

// FillFreed is a no-op in release builds.
func FillFreed(b []byte) {}

// Tracker receives allocation/free notifications in debug builds only.
type Tracker interface {
	OnAlloc(addr uintptr, size uintptr)
	OnFree(addr uintptr)
}

// Global is unused in release builds.
var Global Tracker

// OnAlloc is a no-op in release builds.
func OnAlloc(addr uintptr, size uintptr) {}

// OnFree is a no-op in release builds.
func OnFree(addr uintptr) {}
