package slab

import "unsafe"

// FSAValidationToken is the 16-bit magic value stamped into every block
// on a page's free list. A mismatch on reuse means the free list has
// been corrupted.
const FSAValidationToken uint16 = 0xFBAF

// endOfList terminates the in-page free-block chain; blocks are addressed
// by 16-bit offset from the page base, which bounds a single FSA page to
// 64 KiB.
const endOfList uint16 = 0xFFFF

// pageHeader sits at the start of every page handed to a
// FixedSizeAllocator by its backing PageAllocator. It is a raw-memory
// overlay, never a Go-owned object — the same intrusive-header discipline
// as pagealloc.freePageHeader.
type pageHeader struct {
	pageSize       uintptr
	allocationSize uintptr
	allocatedCount uint32
	firstFree      uint16 // offset from page base, or endOfList
}

// blockHeader sits at the start of every free block in a page's free
// list.
type blockHeader struct {
	token uint16
	next  uint16 // offset from page base, or endOfList
}

var headerSize = roundup(int(unsafe.Sizeof(pageHeader{})), 8)

func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }

func readPageHeader(pageAddr uintptr) *pageHeader {
	return (*pageHeader)(unsafe.Pointer(pageAddr))
}

func blockAt(pageAddr uintptr, offset uint16) uintptr {
	return pageAddr + uintptr(offset)
}

func readBlockHeader(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

func offsetOf(pageAddr, blockAddr uintptr) uint16 {
	return uint16(blockAddr - pageAddr)
}
