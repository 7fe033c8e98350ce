package toplevel

import (
	"errors"

	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
	"github.com/gspizzico/Zn-sub000/internal/slab"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

// tinyMaxSize is the largest request the tiny strategy serves: blocks are
// classed every 16 bytes up to and including this size.
const tinyMaxSize = 255

const tinyBucketStep = 16
const tinyBucketCount = (tinyMaxSize + tinyBucketStep - 1) / tinyBucketStep // 16 buckets: 16,32,...,256

const tinyPageSize = 64 * 1024

// tinyStrategy serves requests up to 255 bytes from 16 fixed-size free
// lists, one per 16-byte class.
type tinyStrategy struct {
	region  *vmem.Region
	pages   *pagealloc.PageAllocator
	buckets [tinyBucketCount]*slab.FixedSizeAllocator
}

func newTinyStrategy(regionCapacity uintptr) (*tinyStrategy, error) {
	region, err := vmem.NewRegion(regionCapacity)
	if err != nil {
		return nil, err
	}
	pages := pagealloc.New(region, tinyPageSize)
	t := &tinyStrategy{region: region, pages: pages}
	for i := range t.buckets {
		t.buckets[i] = slab.New(uintptr(i+1)*tinyBucketStep, pages)
	}
	return t, nil
}

func tinyBucketFor(size uintptr) int {
	if size == 0 {
		size = 1
	}
	idx := int((size - 1) / tinyBucketStep)
	if idx >= tinyBucketCount {
		idx = tinyBucketCount - 1
	}
	return idx
}

var errTinyTooLarge = errors.New("toplevel: request exceeds the tiny strategy's maximum size")

func (t *tinyStrategy) tryMalloc(size uintptr) (uintptr, error) {
	if size > tinyMaxSize {
		return 0, errTinyTooLarge
	}
	return t.buckets[tinyBucketFor(size)].Allocate()
}

func (t *tinyStrategy) tryFree(addr uintptr) bool {
	for _, b := range t.buckets {
		if b.Owns(addr) {
			if err := b.Free(addr); err != nil {
				log.Fatal("tiny strategy: owned address rejected by its bucket", "addr", addr, "err", err)
			}
			return true
		}
	}
	return false
}

func (t *tinyStrategy) owns(addr uintptr) bool {
	for _, b := range t.buckets {
		if b.Owns(addr) {
			return true
		}
	}
	return false
}

func (t *tinyStrategy) name() string { return "tiny" }
