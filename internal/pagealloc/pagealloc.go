// Package pagealloc implements the L1 PageAllocator: one reserved region
// subdivided into fixed-size pages, with a bitmap commit tracker and a LIFO
// free-page list threaded through the freed pages themselves.
package pagealloc

import (
	"errors"
	"unsafe"

	"github.com/gspizzico/Zn-sub000/internal/lock"
	"github.com/gspizzico/Zn-sub000/internal/logx"
	"github.com/gspizzico/Zn-sub000/internal/memdebug"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

var log = logx.Category("PageAllocator")

// ErrOutOfPages is returned when the backing region has no more
// uncommitted pages and the free list is empty.
var ErrOutOfPages = errors.New("pagealloc: region exhausted")

// decommitLowWatermark / decommitHighWatermark are the hysteresis
// thresholds: free pages once utilization drops below 0.4, stop once it
// climbs back to >= 0.8.
const (
	decommitLowWatermark  = 0.4
	decommitHighWatermark = 0.8
)

// PageAllocator subdivides one reserved vmem.Region into pageSize chunks.
type PageAllocator struct {
	region   *vmem.Region
	pageSize uintptr
	base     uintptr
	pages    int

	tracker        *CommittedMemoryTracker
	allocatedPages int
	nextFreePage   uintptr // 0 == region exhausted

	lock lock.CriticalSection
}

// New creates a PageAllocator over region, subdividing it into pages of
// pageSize bytes (rounded up to the OS page size).
func New(region *vmem.Region, pageSize uintptr) *PageAllocator {
	pageSize = vmem.AlignToPageSize(pageSize)
	pages := int(region.Size() / pageSize)
	pa := &PageAllocator{
		region:   region,
		pageSize: pageSize,
		base:     region.Base(),
		pages:    pages,
		tracker:  NewCommittedMemoryTracker(pages),
	}
	pa.nextFreePage = pa.base
	return pa
}

// PageSize returns the size of one page managed by this allocator.
func (pa *PageAllocator) PageSize() uintptr { return pa.pageSize }

// Region returns the backing region.
func (pa *PageAllocator) Region() *vmem.Region { return pa.region }

func (pa *PageAllocator) indexOf(addr uintptr) int {
	return int((addr - pa.base) / pa.pageSize)
}

func (pa *PageAllocator) addrOf(index int) uintptr {
	return pa.base + uintptr(index)*pa.pageSize
}

// Allocate returns the address of one page, committing it on demand.
func (pa *PageAllocator) Allocate() (uintptr, error) {
	var addr uintptr
	var allocErr error
	pa.lock.Do(func() {
		addr, allocErr = pa.allocateLocked()
	})
	return addr, allocErr
}

func (pa *PageAllocator) allocateLocked() (uintptr, error) {
	if pa.nextFreePage == 0 {
		return 0, ErrOutOfPages
	}

	page := pa.nextFreePage
	idx := pa.indexOf(page)
	freshlyCommitted := !pa.tracker.IsCommitted(idx)
	if freshlyCommitted {
		pa.region.Commit(page, pa.pageSize)
		pa.tracker.OnCommit(idx)
	}

	if freshlyCommitted {
		pa.nextFreePage = pa.nextUncommittedAddr()
	} else if isValidFreePage(page) {
		next := readFreePage(page).next
		pa.nextFreePage = next
		if next == 0 {
			pa.nextFreePage = pa.nextUncommittedAddr()
		}
	} else {
		log.Fatal("page allocator free list corrupted: committed page missing validation token", "addr", page)
	}

	pageBytes := (*[1 << 30]byte)(unsafe.Pointer(page))[:pa.pageSize:pa.pageSize]
	memdebug.FillUninitialized(pageBytes)
	pa.allocatedPages++
	memdebug.OnAlloc(page, pa.pageSize)
	return page, nil
}

func (pa *PageAllocator) nextUncommittedAddr() uintptr {
	idx := pa.tracker.NextUncommitted(0)
	if idx < 0 {
		return 0
	}
	return pa.addrOf(idx)
}

// Free returns a page to the allocator. addr must be page-aligned and
// within the region; any page address within the region is valid, not
// just the first page handed out.
func (pa *PageAllocator) Free(addr uintptr) {
	pa.lock.Do(func() {
		pa.freeLocked(addr)
	})
}

func (pa *PageAllocator) freeLocked(addr uintptr) {
	if (addr-pa.base)%pa.pageSize != 0 || addr < pa.base || addr >= pa.base+uintptr(pa.pages)*pa.pageSize {
		log.Fatal("Free called with an address that is not a page-aligned address inside this allocator's region", "addr", addr)
	}
	idx := pa.indexOf(addr)
	if !pa.tracker.IsCommitted(idx) {
		log.Fatal("Free called on a page that is not committed", "addr", addr)
	}

	pageBytes := (*[1 << 30]byte)(unsafe.Pointer(addr))[:pa.pageSize:pa.pageSize]
	memdebug.FillFreed(pageBytes)
	writeFreePage(addr, pa.nextFreePage)
	pa.nextFreePage = addr
	pa.allocatedPages--
	memdebug.OnFree(addr)

	pa.maybeDecommit()
}

// maybeDecommit implements the hysteresis: once utilization
// (allocated/committed) drops below decommitLowWatermark, walk
// the free list popping valid FreePage headers and decommitting the
// underlying pages until utilization climbs back to decommitHighWatermark.
func (pa *PageAllocator) maybeDecommit() {
	committed := pa.tracker.CommittedCount()
	if committed == 0 {
		return
	}
	if float64(pa.allocatedPages)/float64(committed) >= decommitLowWatermark {
		return
	}

	for committed > 0 && float64(pa.allocatedPages)/float64(committed) < decommitHighWatermark {
		page := pa.nextFreePage
		if page == 0 || !isValidFreePage(page) {
			break
		}
		next := readFreePage(page).next
		idx := pa.indexOf(page)
		pa.region.Decommit(page, pa.pageSize)
		pa.tracker.OnFree(idx)
		pa.nextFreePage = next
		committed--
	}

	if pa.nextFreePage != 0 {
		idx := pa.indexOf(pa.nextFreePage)
		if !pa.tracker.IsCommitted(idx) {
			pa.nextFreePage = pa.nextUncommittedAddr()
		}
	} else {
		pa.nextFreePage = pa.nextUncommittedAddr()
	}
}

// IsAllocated reports whether addr's containing page currently holds a
// live allocation (committed and not a valid FreePage header).
func (pa *PageAllocator) IsAllocated(addr uintptr) bool {
	page := addr - (addr-pa.base)%pa.pageSize
	idx := pa.indexOf(page)
	if !pa.tracker.IsCommitted(idx) {
		return false
	}
	return !isValidFreePage(page)
}

// AllocatedPages returns the number of pages currently handed out.
func (pa *PageAllocator) AllocatedPages() int { return pa.allocatedPages }

// CommittedPages returns the number of pages currently backed by physical
// memory.
func (pa *PageAllocator) CommittedPages() int { return pa.tracker.CommittedCount() }

// TotalPages returns the total number of pages the backing region can
// hold.
func (pa *PageAllocator) TotalPages() int { return pa.pages }
