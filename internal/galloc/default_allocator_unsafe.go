package galloc

import (
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/gspizzico/Zn-sub000/internal/memdebug"
)

// mallocPtr is the sole allocation entry point this bootstrap allocator
// exposes: every caller, production or test, deals in addresses, matching
// the address-based contract the rest of the allocator hierarchy
// (pagealloc, slab, tlsf) presents. Unlike those packages it never grows
// a directory or a bitmap — it is the single-mmap-per-class fallback used
// only before the multi-strategy allocator is constructed, so it still
// gets the same debug-fill and tracking hooks every sibling package wires
// through memdebug.
func (a *defaultAllocator) mallocPtr(size int) (uintptr, error) {
	if size < 0 {
		panic("invalid malloc size")
	}
	if size == 0 {
		return 0, nil
	}

	a.allocs++
	log := uint(mathutil.BitLen(roundup(size, mallocAlign) - 1))
	var addr uintptr
	switch {
	case 1<<log > maxSlotSize:
		p, err := a.newPage(size)
		if err != nil {
			return 0, err
		}
		addr = uintptr(unsafe.Pointer(p)) + uintptr(headerSize)

	case a.lists[log] != nil:
		n := a.lists[log]
		p := (*defaultPage)(unsafe.Pointer(uintptr(unsafe.Pointer(n)) &^ uintptr(pageMask)))
		a.lists[log] = n.next
		if n.next != nil {
			n.next.prev = nil
		}
		p.used++
		addr = uintptr(unsafe.Pointer(n))

	default:
		if a.pages[log] == nil {
			if _, err := a.newSharedPage(log); err != nil {
				return 0, err
			}
		}
		p := a.pages[log]
		p.used++
		p.brk++
		addr = uintptr(unsafe.Pointer(p)) + uintptr(headerSize+(p.brk-1)<<log)
		if p.brk == a.cap[log] {
			a.pages[log] = nil
		}
	}

	b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:size:size]
	memdebug.FillUninitialized(b)
	memdebug.OnAlloc(addr, uintptr(size))
	return addr, nil
}

// freePtr returns an address previously handed out by mallocPtr.
func (a *defaultAllocator) freePtr(addr uintptr) error {
	if addr == 0 {
		return nil
	}

	if n := usableSize(addr); n > 0 {
		b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:n:n]
		memdebug.FillFreed(b)
	}
	memdebug.OnFree(addr)

	a.allocs--
	pg := (*defaultPage)(unsafe.Pointer(addr &^ uintptr(pageMask)))
	log := pg.log
	if log == 0 {
		a.bytes -= pg.size
		return a.unmap(pg)
	}

	n := (*defaultNode)(unsafe.Pointer(addr))
	n.prev = nil
	n.next = a.lists[log]
	if n.next != nil {
		n.next.prev = n
	}
	a.lists[log] = n
	pg.used--
	if pg.used != 0 {
		return nil
	}

	for i := 0; i < pg.brk; i++ {
		n := (*defaultNode)(unsafe.Pointer(uintptr(unsafe.Pointer(pg)) + uintptr(headerSize+i<<log)))
		switch {
		case n.prev == nil:
			a.lists[log] = n.next
			if n.next != nil {
				n.next.prev = nil
			}
		case n.next == nil:
			n.prev.next = nil
		default:
			n.prev.next = n.next
			n.next.prev = n.prev
		}
	}

	if a.pages[log] == pg {
		a.pages[log] = nil
	}
	a.bytes -= pg.size
	return a.unmap(pg)
}

// ownsPtr reports whether addr currently falls within a page this
// allocator has mapped. It is O(n) in the number of live mmap regions,
// acceptable since the bootstrap allocator is only used before the
// primary allocator takes over, or in -use-default-malloc diagnostic mode.
func (a *defaultAllocator) ownsPtr(addr uintptr) bool {
	for p := range a.regs {
		base := uintptr(unsafe.Pointer(p))
		if addr >= base && addr < base+uintptr(p.size) {
			return true
		}
	}
	return false
}
