// Package vmem is the L0 façade over the OS page-granularity API:
// reserve/commit/decommit/release/query, plus page-size alignment. Every
// allocator above this layer (PageAllocator, TLSF's backing pages, the
// stack allocator's region, Direct-strategy allocations) goes through
// here, never straight to the OS.
package vmem

import (
	"errors"

	"github.com/gspizzico/Zn-sub000/internal/logx"
)

// ErrAllocationFailed is returned when Reserve/Allocate cannot obtain the
// requested address space or backing memory from the OS.
var ErrAllocationFailed = errors.New("vmem: allocation failed")

// ErrOutOfAddressSpace is returned when the process has exhausted
// reservable address space and there is no growth policy.
var ErrOutOfAddressSpace = errors.New("vmem: out of address space")

var log = logx.Category("Memory")

// State is the OS-reported state of a queried range.
type State int

const (
	StateFree State = iota
	StateReserved
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateReserved:
		return "Reserved"
	case StateCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// Info is the result of Query: the OS state of the range, and the range
// itself (undefined — zero value — when State is Free).
type Info struct {
	State State
	Range MemoryRange
}

var pageSize = queryPageSize()

// GetPageSize returns the OS page granularity, queried once at process
// startup.
func GetPageSize() uintptr { return pageSize }

// AlignToPageSize rounds n up to the next multiple of the OS page size.
func AlignToPageSize(n uintptr) uintptr {
	return alignUp(n, pageSize)
}

func alignUp(n, alignment uintptr) uintptr {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

// Reserve reserves ceil(size/page)*page bytes of address space without
// backing them with physical memory. Returns the base address.
func Reserve(size uintptr) (uintptr, error) {
	aligned := AlignToPageSize(size)
	addr, err := osReserve(aligned)
	if err != nil || addr == 0 {
		log.Warning("reserve failed", "size", aligned, "err", err)
		return 0, ErrAllocationFailed
	}
	log.Verbose("reserved region", "addr", addr, "size", aligned)
	return addr, nil
}

// Allocate reserves and commits size bytes in one call.
func Allocate(size uintptr) (uintptr, error) {
	aligned := AlignToPageSize(size)
	addr, err := osAllocate(aligned)
	if err != nil || addr == 0 {
		log.Warning("allocate failed", "size", aligned, "err", err)
		return 0, ErrAllocationFailed
	}
	log.Verbose("allocated region", "addr", addr, "size", aligned)
	return addr, nil
}

// Release releases a whole previously-reserved region. addr must equal the
// base address returned by Reserve/Allocate for that region.
func Release(addr uintptr, size uintptr) bool {
	if addr == 0 {
		return false
	}
	ok := osRelease(addr, AlignToPageSize(size))
	if !ok {
		log.Error("release failed", "addr", addr)
	}
	return ok
}

// Commit backs [addr, addr+size) with physical memory. It aborts when the
// OS reports less free physical memory than size, or when the OS refuses
// the commit (e.g. for a range outside any reservation). The range's
// current state is not checked first: committing an already-committed
// range succeeds.
func Commit(addr uintptr, size uintptr) bool {
	if !hasAvailablePhysical(size) {
		log.Fatal("commit requested more physical memory than is available", "addr", addr, "size", size)
	}
	if !osCommit(addr, size) {
		log.Fatal("OS refused to commit a previously-reserved page", "addr", addr, "size", size)
	}
	log.Verbose("committed pages", "addr", addr, "size", size)
	return true
}

// Decommit returns [addr, addr+size) to the Reserved state without
// releasing the address space. It aborts when the OS refuses the request.
// The range's current state is not checked first: decommitting a range
// that is reserved but not committed succeeds.
func Decommit(addr uintptr, size uintptr) bool {
	if !osDecommit(addr, size) {
		log.Fatal("decommit of a non-committed range", "addr", addr, "size", size)
	}
	log.Verbose("decommitted pages", "addr", addr, "size", size)
	return true
}

// Query reports the OS state of [addr, addr+size).
func Query(addr uintptr, size uintptr) Info {
	return osQuery(addr, size)
}
