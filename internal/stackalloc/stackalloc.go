// Package stackalloc implements the L2 stack/linear allocator: a
// monotonic bump allocator with savepoint/restore, committing pages on
// demand. Instances are owned by one goroutine by convention — no locking.
package stackalloc

import (
	"errors"
	"unsafe"

	"github.com/gspizzico/Zn-sub000/internal/logx"
	"github.com/gspizzico/Zn-sub000/internal/memdebug"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

var log = logx.Category("StackAllocator")

// ErrOutOfSpace is returned when an allocation would exceed the stack's
// reserved capacity.
var ErrOutOfSpace = errors.New("stackalloc: out of space")

// StackAllocator is a monotonic bump allocator over one reserved region.
type StackAllocator struct {
	region *vmem.Region

	begin uintptr
	end   uintptr

	top          uintptr
	committedEnd uintptr
	lastSave     uintptr // 0 == no savepoint
}

// New reserves a region of the given capacity and eagerly commits its
// first OS page.
func New(capacity uintptr) (*StackAllocator, error) {
	region, err := vmem.NewRegion(capacity)
	if err != nil {
		return nil, err
	}
	s := &StackAllocator{
		region: region,
		begin:  region.Base(),
		end:    region.Base() + region.Size(),
		top:    region.Base(),
	}
	page := vmem.GetPageSize()
	region.Commit(s.begin, page)
	s.committedEnd = s.begin + page
	return s, nil
}

// Close releases the backing region. It is the Go stand-in for the
// source's RAII destructor.
func (s *StackAllocator) Close() { s.region.Release() }

// Top returns the current bump pointer.
func (s *StackAllocator) Top() uintptr { return s.top }

func alignUp(n, alignment uintptr) uintptr {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

// Allocate bumps the stack by n bytes, aligned to align, committing pages
// on demand.
func (s *StackAllocator) Allocate(n uintptr, align uintptr) (uintptr, error) {
	if align == 0 {
		align = 1
	}
	aligned := alignUp(s.top, align)
	if aligned+n > s.end || aligned+n < aligned {
		return 0, ErrOutOfSpace
	}

	if aligned+n > s.committedEnd {
		need := vmem.AlignToPageSize(aligned + n - s.committedEnd)
		s.region.Commit(s.committedEnd, need)
		s.committedEnd += need
	}

	s.top = aligned + n
	b := (*[1 << 30]byte)(unsafe.Pointer(aligned))[:n:n]
	memdebug.FillUninitialized(b)
	memdebug.OnAlloc(aligned, n)
	return aligned, nil
}

// Free truncates the stack to addr if addr is below the current top.
// Frees above top are ignored — this is a truncation, not arbitrary
// release.
func (s *StackAllocator) Free(addr uintptr) {
	if addr >= s.top {
		return
	}
	b := (*[1 << 30]byte)(unsafe.Pointer(addr))[: s.top-addr : s.top-addr]
	memdebug.FillFreed(b)
	memdebug.OnFree(addr)
	s.top = addr
}

// SaveStatus pushes a savepoint: the current lastSave is written into a
// pointer-sized slot bumped from the stack itself, and lastSave becomes
// that slot's address. Saves nest.
func (s *StackAllocator) SaveStatus() {
	slot, err := s.Allocate(unsafe.Sizeof(uintptr(0)), unsafe.Alignof(uintptr(0)))
	if err != nil {
		log.Fatal("failed to allocate space for a savepoint", "err", err)
	}
	*(*uintptr)(unsafe.Pointer(slot)) = s.lastSave
	s.lastSave = slot
}

// RestoreStatus unwinds exactly one savepoint, setting top back to the
// address of the matching SaveStatus call's slot: the value top held at
// that call, rounded up to pointer alignment.
func (s *StackAllocator) RestoreStatus() {
	if s.lastSave == 0 {
		log.Fatal("RestoreStatus called with no matching SaveStatus")
	}
	predecessor := *(*uintptr)(unsafe.Pointer(s.lastSave))
	s.top = s.lastSave
	s.lastSave = predecessor
}

// Scope is the RAII-equivalent savepoint: Save returns a Scope whose
// Close restores the stack, meant to be used with defer.
type Scope struct {
	s *StackAllocator
}

// Save takes a savepoint and returns a Scope for deferred restore.
func (s *StackAllocator) Save() Scope {
	s.SaveStatus()
	return Scope{s: s}
}

// Close restores the stack to the state at the matching Save call.
func (sc Scope) Close() { sc.s.RestoreStatus() }
