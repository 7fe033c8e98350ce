// Package slab implements the L2 fixed-size allocator (FSA): a pool for
// one allocation size, with pages subdivided into equal blocks linked
// through embedded free-block headers.
package slab

import (
	"errors"
	"unsafe"

	"github.com/gspizzico/Zn-sub000/internal/lock"
	"github.com/gspizzico/Zn-sub000/internal/logx"
	"github.com/gspizzico/Zn-sub000/internal/memdebug"
	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
)

var log = logx.Category("FixedSizeAllocator")

// ErrWrongAllocator is returned by Free when addr's page is tracked by this
// allocator but its page header records a different allocation size. An
// address on a page carved by another FixedSizeAllocator instance is not
// in this allocator's page sets and is reported as ErrNotOwned instead.
var ErrWrongAllocator = errors.New("slab: address belongs to a different FixedSizeAllocator")

// ErrNotOwned is returned by Free when addr does not fall within any page
// this allocator currently owns.
var ErrNotOwned = errors.New("slab: address not owned by this allocator")

const minBlockSize = 8

// FixedSizeAllocator pools blocks of exactly one size, carved from pages
// supplied by a shared PageAllocator.
type FixedSizeAllocator struct {
	allocationSize uintptr
	pages          *pagealloc.PageAllocator
	maxBlocks      int

	free map[uintptr]struct{} // pages with >=1 free block
	full map[uintptr]struct{} // pages with 0 free blocks

	lock lock.CriticalSection
}

// New creates a FixedSizeAllocator for allocationSize bytes (rounded up to
// the minimum of 8 bytes, then to the next power of two), backed by pages.
func New(allocationSize uintptr, pages *pagealloc.PageAllocator) *FixedSizeAllocator {
	size := nextPow2(max(allocationSize, minBlockSize))
	maxBlocks := (int(pages.PageSize()) - headerSize) / int(size)
	if maxBlocks < 1 {
		log.Fatal("FSA allocation size leaves no room for a single block on the backing page", "allocationSize", size, "pageSize", pages.PageSize())
	}
	return &FixedSizeAllocator{
		allocationSize: size,
		pages:          pages,
		maxBlocks:      maxBlocks,
		free:           map[uintptr]struct{}{},
		full:           map[uintptr]struct{}{},
	}
}

func max(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}

func nextPow2(n uintptr) uintptr {
	p := uintptr(1)
	for p < n {
		p <<= 1
	}
	return p
}

// AllocationSize returns this allocator's fixed block size.
func (a *FixedSizeAllocator) AllocationSize() uintptr { return a.allocationSize }

// MaxBlocksPerPage returns how many blocks fit on one backing page.
func (a *FixedSizeAllocator) MaxBlocksPerPage() int { return a.maxBlocks }

// Allocate returns one block of AllocationSize() bytes.
func (a *FixedSizeAllocator) Allocate() (uintptr, error) {
	var addr uintptr
	var err error
	a.lock.Do(func() {
		addr, err = a.allocateLocked()
	})
	return addr, err
}

func (a *FixedSizeAllocator) allocateLocked() (uintptr, error) {
	if len(a.free) == 0 {
		page, err := a.newPageLocked()
		if err != nil {
			return 0, err
		}
		a.free[page] = struct{}{}
	}

	var page uintptr
	for p := range a.free {
		page = p
		break
	}

	hdr := readPageHeader(page)
	blockAddr := blockAt(page, hdr.firstFree)
	block := readBlockHeader(blockAddr)
	if block.token != FSAValidationToken {
		log.Fatal("FSA free list corrupted: block missing validation token", "page", page, "offset", hdr.firstFree)
	}
	hdr.firstFree = block.next
	hdr.allocatedCount++

	if hdr.firstFree == endOfList {
		delete(a.free, page)
		a.full[page] = struct{}{}
	}

	blockBytes := (*[1 << 20]byte)(unsafe.Pointer(blockAddr))[:a.allocationSize:a.allocationSize]
	for i := range blockBytes[:minBlockSize] {
		blockBytes[i] = 0
	}
	memdebug.FillUninitialized(blockBytes[minBlockSize:])
	memdebug.OnAlloc(blockAddr, a.allocationSize)
	return blockAddr, nil
}

func (a *FixedSizeAllocator) newPageLocked() (uintptr, error) {
	page, err := a.pages.Allocate()
	if err != nil {
		return 0, err
	}
	hdr := readPageHeader(page)
	hdr.pageSize = a.pages.PageSize()
	hdr.allocationSize = a.allocationSize
	hdr.allocatedCount = 0

	offset := uint16(headerSize)
	hdr.firstFree = offset
	for i := 0; i < a.maxBlocks; i++ {
		blockAddr := blockAt(page, offset)
		block := readBlockHeader(blockAddr)
		block.token = FSAValidationToken
		if i == a.maxBlocks-1 {
			block.next = endOfList
		} else {
			block.next = offset + uint16(a.allocationSize)
		}
		offset += uint16(a.allocationSize)
	}
	return page, nil
}

// Free returns a block to its owning page.
func (a *FixedSizeAllocator) Free(addr uintptr) error {
	var err error
	a.lock.Do(func() {
		err = a.freeLocked(addr)
	})
	return err
}

func (a *FixedSizeAllocator) freeLocked(addr uintptr) error {
	page := addr - (addr-a.pages.Region().Base())%a.pages.PageSize()
	_, isFree := a.free[page]
	_, isFull := a.full[page]
	if !isFree && !isFull {
		return ErrNotOwned
	}

	hdr := readPageHeader(page)
	if hdr.allocationSize != a.allocationSize {
		return ErrWrongAllocator
	}

	blockBytes := (*[1 << 20]byte)(unsafe.Pointer(addr))[:a.allocationSize:a.allocationSize]
	memdebug.FillFreed(blockBytes)

	block := readBlockHeader(addr)
	block.token = FSAValidationToken
	block.next = hdr.firstFree
	hdr.firstFree = offsetOf(page, addr)
	hdr.allocatedCount--
	memdebug.OnFree(addr)

	if isFull {
		delete(a.full, page)
		a.free[page] = struct{}{}
	}

	if hdr.allocatedCount == 0 {
		delete(a.free, page)
		a.pages.Free(page)
	}
	return nil
}

// Owns reports whether addr falls within a page currently tracked by this
// allocator (free or full).
func (a *FixedSizeAllocator) Owns(addr uintptr) bool {
	page := addr - (addr-a.pages.Region().Base())%a.pages.PageSize()
	if _, ok := a.free[page]; ok {
		return true
	}
	_, ok := a.full[page]
	return ok
}
