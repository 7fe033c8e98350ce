package toplevel

import (
	"errors"

	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
	"github.com/gspizzico/Zn-sub000/internal/slab"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

// smallBucketSizes are the power-of-two classes the small/bucket strategy
// serves, from just above the tiny strategy's ceiling up to 8KiB.
var smallBucketSizes = [...]uintptr{256, 512, 1024, 2048, 4096, 8192}

const smallMaxSize = 8192
const smallPageSize = 64 * 1024

// smallBucketStrategy serves 256B-8KiB requests from an array of
// FixedSizeAllocators, one per power-of-two class, the same "named size
// classes over a shared page pool" shape as tinyStrategy but at coarser
// granularity.
type smallBucketStrategy struct {
	region  *vmem.Region
	pages   *pagealloc.PageAllocator
	buckets [len(smallBucketSizes)]*slab.FixedSizeAllocator
}

func newSmallBucketStrategy(regionCapacity uintptr) (*smallBucketStrategy, error) {
	region, err := vmem.NewRegion(regionCapacity)
	if err != nil {
		return nil, err
	}
	pages := pagealloc.New(region, smallPageSize)
	s := &smallBucketStrategy{region: region, pages: pages}
	for i, size := range smallBucketSizes {
		s.buckets[i] = slab.New(size, pages)
	}
	return s, nil
}

var errSmallTooLarge = errors.New("toplevel: request exceeds the small/bucket strategy's maximum size")

func smallBucketFor(size uintptr) int {
	for i, classSize := range smallBucketSizes {
		if size <= classSize {
			return i
		}
	}
	return len(smallBucketSizes) - 1
}

func (s *smallBucketStrategy) tryMalloc(size uintptr) (uintptr, error) {
	if size > smallMaxSize {
		return 0, errSmallTooLarge
	}
	return s.buckets[smallBucketFor(size)].Allocate()
}

func (s *smallBucketStrategy) tryFree(addr uintptr) bool {
	for _, b := range s.buckets {
		if b.Owns(addr) {
			if err := b.Free(addr); err != nil {
				log.Fatal("small/bucket strategy: owned address rejected by its bucket", "addr", addr, "err", err)
			}
			return true
		}
	}
	return false
}

func (s *smallBucketStrategy) owns(addr uintptr) bool {
	for _, b := range s.buckets {
		if b.Owns(addr) {
			return true
		}
	}
	return false
}

func (s *smallBucketStrategy) name() string { return "small" }
