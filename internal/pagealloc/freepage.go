package pagealloc

import "unsafe"

// FreePageValidationToken is written into the low byte of a freed page's
// header so reuse of a corrupted free list is detectable.
const FreePageValidationToken byte = 0xFB

// freePageHeader overlays the first bytes of a just-freed page. It is
// never a Go-owned object: it is a typed view over raw, OS-backed memory
// obtained from vmem, written and read with unsafe.Pointer.
type freePageHeader struct {
	token byte
	_     [7]byte // padding to keep `next` pointer-aligned
	next  uintptr
}

func readFreePage(pageAddr uintptr) *freePageHeader {
	return (*freePageHeader)(unsafe.Pointer(pageAddr))
}

func writeFreePage(pageAddr uintptr, next uintptr) {
	h := (*freePageHeader)(unsafe.Pointer(pageAddr))
	h.token = FreePageValidationToken
	h.next = next
}

func isValidFreePage(pageAddr uintptr) bool {
	return readFreePage(pageAddr).token == FreePageValidationToken
}
