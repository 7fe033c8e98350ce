//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris

package vmem

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

func queryPageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// bookkeeping: the façade tracks which sub-ranges it has told the OS are
// committed, purely so Query can answer without a platform-specific
// mincore() call. The higher layers (CommittedMemoryTracker) keep their
// own, authoritative bitmap for the hot path; this is a best-effort mirror
// used for diagnostics and tests.
var (
	bookkeepingMu sync.Mutex
	reserved      = map[uintptr]uintptr{} // base -> size
	committed     = map[uintptr]uintptr{} // base -> size, sub-ranges of a reserved region
)

func osReserve(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	bookkeepingMu.Lock()
	reserved[addr] = size
	bookkeepingMu.Unlock()
	return addr, nil
}

func osAllocate(size uintptr) (uintptr, error) {
	addr, err := osReserve(size)
	if err != nil {
		return 0, err
	}
	if !osCommit(addr, size) {
		osRelease(addr, size)
		return 0, ErrAllocationFailed
	}
	return addr, nil
}

func osRelease(addr uintptr, size uintptr) bool {
	b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:size:size]
	if err := unix.Munmap(b); err != nil {
		return false
	}
	bookkeepingMu.Lock()
	delete(reserved, addr)
	delete(committed, addr)
	bookkeepingMu.Unlock()
	return true
}

func osCommit(addr uintptr, size uintptr) bool {
	b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:size:size]
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return false
	}
	bookkeepingMu.Lock()
	committed[addr] = size
	bookkeepingMu.Unlock()
	return true
}

func osDecommit(addr uintptr, size uintptr) bool {
	b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:size:size]
	// MADV_DONTNEED actually returns the backing pages to the OS; the
	// subsequent mprotect keeps the address space reserved but
	// inaccessible, matching the Reserved state.
	_ = unix.Madvise(b, unix.MADV_DONTNEED)
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return false
	}
	bookkeepingMu.Lock()
	delete(committed, addr)
	bookkeepingMu.Unlock()
	return true
}

func osQuery(addr uintptr, size uintptr) Info {
	bookkeepingMu.Lock()
	defer bookkeepingMu.Unlock()
	for base, sz := range committed {
		if addr >= base && addr+size <= base+sz {
			return Info{State: StateCommitted, Range: MemoryRange{Begin: addr, End: addr + size}}
		}
	}
	for base, sz := range reserved {
		if addr >= base && addr+size <= base+sz {
			return Info{State: StateReserved, Range: MemoryRange{Begin: addr, End: addr + size}}
		}
	}
	return Info{State: StateFree}
}

