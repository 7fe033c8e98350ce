package tlsf

import "math/bits"

// Two-level segregated fit parameters. First-level classes double the
// size range; second-level classes subdivide each first-level range
// linearly into slCount buckets.
const (
	startFL  = 8  // first-level class 0 begins at 1<<startFL == minBlockSize
	flCount  = 10 // first-level classes cover [2^8, 2^18)
	slLog2   = 4
	slCount  = 1 << slLog2 // 16 second-level classes per first-level class
	slMask   = slCount - 1
	minBlock = 1 << startFL // 256 bytes
)

// mappingInsert computes the (fl, sl) free-list bucket a block of this
// exact size should be inserted into.
func mappingInsert(size uintptr) (fl, sl int) {
	if size < minBlock {
		size = minBlock
	}
	fls := bits.Len(uint(size)) - 1 // floor(log2(size))
	fl = fls - startFL
	if fl < 0 {
		fl = 0
	}
	if fl >= flCount {
		fl = flCount - 1
	}
	shift := fls - slLog2
	if shift < 0 {
		shift = 0
	}
	sl = int((size >> uint(shift)) & slMask)
	return fl, sl
}

// mappingSearch computes the bucket to start searching from for a
// requested size, rounding up to the next class boundary so that any
// block found is guaranteed large enough. This is the classic TLSF
// "round up" step applied before the search.
func mappingSearch(size uintptr) (fl, sl int) {
	if size >= minBlock {
		fls := bits.Len(uint(size)) - 1
		roundBit := uintptr(1) << uint(fls-slLog2)
		size = size + roundBit - 1
	}
	return mappingInsert(size)
}
