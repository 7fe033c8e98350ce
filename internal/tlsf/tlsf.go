// Package tlsf implements the L2 two-level segregated fit allocator: a
// general-purpose allocator over variable-size blocks, backed by fixed-size
// pages pulled from a pagealloc.PageAllocator and grown on demand.
package tlsf

import (
	"errors"
	"unsafe"

	"github.com/gspizzico/Zn-sub000/internal/lock"
	"github.com/gspizzico/Zn-sub000/internal/logx"
	"github.com/gspizzico/Zn-sub000/internal/memdebug"
	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
)

var log = logx.Category("TLSF")

// ErrTooLarge is returned when a request cannot fit in a single backing
// page, even an empty one.
var ErrTooLarge = errors.New("tlsf: request exceeds the maximum single allocation size")

// ErrNotOwned is returned by Free when addr was not handed out by this
// allocator.
var ErrNotOwned = errors.New("tlsf: address not owned by this allocator")

// Config tunes optional behavior.
type Config struct {
	// ExperimentalPageDecommit releases a backing page back to the
	// PageAllocator as soon as it becomes a single free block spanning
	// the whole arena. Off by default: coalescing churn close to a page
	// boundary would otherwise thrash commit/decommit.
	ExperimentalPageDecommit bool
}

type arena struct {
	base uintptr
	end  uintptr
}

func (a arena) contains(addr uintptr) bool { return addr >= a.base && addr < a.end }

// Allocator is a two-level segregated fit allocator over memory supplied a
// page at a time by a PageAllocator.
type Allocator struct {
	pages *pagealloc.PageAllocator
	cfg   Config

	dir    directory
	arenas []arena

	lock lock.CriticalSection
}

// New creates an Allocator backed by pages, which must hand out pages
// large enough to host at least one minimum-size block plus all header
// overhead.
func New(pages *pagealloc.PageAllocator, cfg Config) *Allocator {
	return &Allocator{pages: pages, cfg: cfg}
}

// MaxAllocationSize returns the largest single request this allocator can
// satisfy without growing: just under half of one backing page, so a
// split off the top always leaves a viable free remainder.
func (a *Allocator) MaxAllocationSize() uintptr {
	return a.pages.PageSize()/2 - uintptr(headerSize+footerSize)
}

// Allocate returns a block of at least size bytes, 8-byte aligned.
func (a *Allocator) Allocate(size uintptr) (uintptr, error) {
	if size == 0 {
		size = 1
	}
	size = roundupPtr(size, 8)
	if size > a.MaxAllocationSize() {
		return 0, ErrTooLarge
	}
	if size < minBlock {
		size = minBlock
	}

	var addr uintptr
	var err error
	a.lock.Do(func() {
		addr, err = a.allocateLocked(size)
	})
	return addr, err
}

func (a *Allocator) allocateLocked(size uintptr) (uintptr, error) {
	fl, sl := mappingSearch(size + uintptr(footerSize))
	blockAddr, foundFL, foundSL := a.dir.findSuitable(fl, sl)
	if blockAddr == 0 {
		if err := a.growLocked(); err != nil {
			return 0, err
		}
		blockAddr, foundFL, foundSL = a.dir.findSuitable(fl, sl)
		if blockAddr == 0 {
			log.Fatal("grow succeeded but no suitable free block was found", "size", size)
		}
	}

	a.dir.remove(blockAddr, foundFL, foundSL)
	a.splitLocked(blockAddr, size)

	h := header(blockAddr)
	h.flags &^= flagFree
	if next := nextPhysical(blockAddr); a.arenaContaining(next) != nil {
		header(next).flags &^= flagPrevFree
	}

	payload := payloadAddr(blockAddr)
	b := (*[1 << 30]byte)(unsafe.Pointer(payload))[:h.size:h.size]
	memdebug.FillUninitialized(b)
	memdebug.OnAlloc(payload, h.size)
	return payload, nil
}

// splitLocked carves a free block down to requestSize bytes of payload if
// the remainder would still be a viable free block, reinserting the
// remainder into the directory.
func (a *Allocator) splitLocked(blockAddr uintptr, requestSize uintptr) {
	h := header(blockAddr)
	remainder := h.size - requestSize
	if remainder < uintptr(headerSize)+minBlock {
		return
	}
	remainder -= uintptr(headerSize)

	newBlockAddr := blockAddr + uintptr(headerSize) + requestSize
	h.size = requestSize

	nh := header(newBlockAddr)
	nh.size = remainder
	nh.prevPhysical = blockAddr
	nh.flags = flagFree

	if next := nextPhysical(newBlockAddr); a.arenaContaining(next) != nil {
		header(next).prevPhysical = newBlockAddr
	}

	fl, sl := mappingInsert(nh.size)
	a.dir.insert(newBlockAddr, fl, sl)
}

// growLocked commits one new backing page from the PageAllocator and
// inserts it as a single free block spanning the whole arena.
func (a *Allocator) growLocked() error {
	page, err := a.pages.Allocate()
	if err != nil {
		return err
	}
	pageSize := a.pages.PageSize()
	a.arenas = append(a.arenas, arena{base: page, end: page + pageSize})

	h := header(page)
	h.size = pageSize - uintptr(headerSize)
	h.prevPhysical = 0
	h.flags = flagFree

	fl, sl := mappingInsert(h.size)
	a.dir.insert(page, fl, sl)
	return nil
}

func (a *Allocator) arenaContaining(addr uintptr) *arena {
	for i := range a.arenas {
		if a.arenas[i].contains(addr) {
			return &a.arenas[i]
		}
	}
	return nil
}

// Owns reports whether payload was handed out by this allocator.
func (a *Allocator) Owns(payload uintptr) bool {
	blockAddr := headerFromPayload(payload)
	return a.arenaContaining(blockAddr) != nil
}

// Free returns a block to the allocator, coalescing with free physical
// neighbors within the same backing page.
func (a *Allocator) Free(payload uintptr) error {
	var err error
	a.lock.Do(func() {
		err = a.freeLocked(payload)
	})
	return err
}

func (a *Allocator) freeLocked(payload uintptr) error {
	blockAddr := headerFromPayload(payload)
	ar := a.arenaContaining(blockAddr)
	if ar == nil {
		return ErrNotOwned
	}

	h := header(blockAddr)
	size := h.size
	b := (*[1 << 30]byte)(unsafe.Pointer(payload))[:size:size]
	memdebug.FillFreed(b)
	memdebug.OnFree(payload)

	// Merge with the previous physical block if it is free.
	if isPrevFree(blockAddr) && h.prevPhysical != 0 {
		prevAddr := h.prevPhysical
		prevFL, prevSL := mappingInsert(header(prevAddr).size)
		a.dir.remove(prevAddr, prevFL, prevSL)
		header(prevAddr).size += uintptr(headerSize) + size
		blockAddr = prevAddr
		h = header(blockAddr)
		size = h.size
	}

	// Merge with the next physical block if it is free.
	if next := nextPhysical(blockAddr); ar.contains(next) && isFree(next) {
		nextSize := header(next).size
		nextFL, nextSL := mappingInsert(nextSize)
		a.dir.remove(next, nextFL, nextSL)
		h.size += uintptr(headerSize) + nextSize
		size = h.size
		if afterNext := next + uintptr(headerSize) + nextSize; ar.contains(afterNext) {
			header(afterNext).prevPhysical = blockAddr
		}
	}

	h.flags |= flagFree
	writeFooter(blockAddr)

	if n := nextPhysical(blockAddr); ar.contains(n) {
		header(n).flags |= flagPrevFree
		header(n).prevPhysical = blockAddr
	} else if a.cfg.ExperimentalPageDecommit && blockAddr == ar.base && size == ar.end-ar.base-uintptr(headerSize) {
		a.releaseArenaLocked(ar)
		return nil
	}

	fl, sl := mappingInsert(size)
	a.dir.insert(blockAddr, fl, sl)
	return nil
}

func writeFooter(blockAddr uintptr) {
	h := header(blockAddr)
	f := footer(blockAddr, h.size)
	f.size = h.size
	f.flags = h.flags
}

// releaseArenaLocked hands a fully-free backing page back to the
// PageAllocator. Only reachable when ExperimentalPageDecommit is set.
func (a *Allocator) releaseArenaLocked(ar *arena) {
	a.pages.Free(ar.base)
	for i := range a.arenas {
		if a.arenas[i].base == ar.base {
			a.arenas = append(a.arenas[:i], a.arenas[i+1:]...)
			break
		}
	}
}

func roundupPtr(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }
