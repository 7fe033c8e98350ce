package toplevel

import (
	"github.com/gspizzico/Zn-sub000/internal/lock"
	"github.com/gspizzico/Zn-sub000/internal/memdebug"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

const directMinSize = mediumMaxSize + 1

// directStrategy serves requests above 2MiB with a dedicated reserved
// region per allocation — no pooling, since these requests are rare and
// large enough that OS mmap overhead is negligible relative to their
// size.
type directStrategy struct {
	lock    lock.CriticalSection
	regions map[uintptr]*vmem.Region
}

func newDirectStrategy() *directStrategy {
	return &directStrategy{regions: map[uintptr]*vmem.Region{}}
}

func (d *directStrategy) tryMalloc(size uintptr) (uintptr, error) {
	region, err := vmem.NewRegion(size)
	if err != nil {
		return 0, err
	}
	if ok := region.Commit(region.Base(), region.Size()); !ok {
		region.Release()
		return 0, vmem.ErrAllocationFailed
	}

	addr := region.Base()
	d.lock.Do(func() {
		d.regions[addr] = region
	})
	memdebug.OnAlloc(addr, region.Size())
	return addr, nil
}

func (d *directStrategy) tryFree(addr uintptr) bool {
	var region *vmem.Region
	d.lock.Do(func() {
		region = d.regions[addr]
		delete(d.regions, addr)
	})
	if region == nil {
		return false
	}
	memdebug.OnFree(addr)
	region.Release()
	return true
}

func (d *directStrategy) owns(addr uintptr) bool {
	var ok bool
	d.lock.Do(func() {
		_, ok = d.regions[addr]
	})
	return ok
}

func (d *directStrategy) name() string { return "direct" }
