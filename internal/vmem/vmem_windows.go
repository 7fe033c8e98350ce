//go:build windows

package vmem

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

func queryPageSize() uintptr {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return uintptr(info.PageSize)
}

var (
	bookkeepingMu sync.Mutex
	reserved      = map[uintptr]uintptr{}
	committed     = map[uintptr]uintptr{}
)

func osReserve(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, err
	}
	bookkeepingMu.Lock()
	reserved[uintptr(addr)] = size
	bookkeepingMu.Unlock()
	return uintptr(addr), nil
}

func osAllocate(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return 0, err
	}
	bookkeepingMu.Lock()
	reserved[uintptr(addr)] = size
	committed[uintptr(addr)] = size
	bookkeepingMu.Unlock()
	return uintptr(addr), nil
}

func osRelease(addr uintptr, size uintptr) bool {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return false
	}
	bookkeepingMu.Lock()
	delete(reserved, addr)
	delete(committed, addr)
	bookkeepingMu.Unlock()
	return true
}

func osCommit(addr uintptr, size uintptr) bool {
	if _, err := windows.VirtualAlloc(addr, size, windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return false
	}
	bookkeepingMu.Lock()
	committed[addr] = size
	bookkeepingMu.Unlock()
	return true
}

func osDecommit(addr uintptr, size uintptr) bool {
	if err := windows.VirtualFree(addr, size, windows.MEM_DECOMMIT); err != nil {
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

// hasAvailablePhysical guards Commit against backing more memory than the
// OS currently reports available.
func hasAvailablePhysical(size uintptr) bool {
	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return true
	}
	return status.AvailPhys >= uint64(size)
}
