package toplevel

import (
	"errors"

	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
	"github.com/gspizzico/Zn-sub000/internal/tlsf"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

const mediumMinSize = smallMaxSize + 1
const mediumMaxSize = 2 * 1024 * 1024

// mediumPageSize backs the medium strategy's TLSF instance with 8MiB
// arenas: TLSF serves at most half an arena minus header/footer overhead
// in one block, which still exceeds the 2MiB ceiling.
const mediumPageSize = 8 * 1024 * 1024

// mediumStrategy serves 8KiB-2MiB requests from a single general-purpose
// two-level segregated fit allocator.
type mediumStrategy struct {
	region *vmem.Region
	pages  *pagealloc.PageAllocator
	tlsf   *tlsf.Allocator
}

func newMediumStrategy(regionCapacity uintptr) (*mediumStrategy, error) {
	region, err := vmem.NewRegion(regionCapacity)
	if err != nil {
		return nil, err
	}
	pages := pagealloc.New(region, mediumPageSize)
	return &mediumStrategy{
		region: region,
		pages:  pages,
		tlsf:   tlsf.New(pages, tlsf.Config{}),
	}, nil
}

var errMediumTooLarge = errors.New("toplevel: request exceeds the medium strategy's maximum size")

func (m *mediumStrategy) tryMalloc(size uintptr) (uintptr, error) {
	if size > mediumMaxSize {
		return 0, errMediumTooLarge
	}
	return m.tlsf.Allocate(size)
}

func (m *mediumStrategy) tryFree(addr uintptr) bool {
	if !m.tlsf.Owns(addr) {
		return false
	}
	if err := m.tlsf.Free(addr); err != nil {
		log.Fatal("medium strategy: owned address rejected by TLSF", "addr", addr, "err", err)
	}
	return true
}

func (m *mediumStrategy) owns(addr uintptr) bool { return m.tlsf.Owns(addr) }

func (m *mediumStrategy) name() string { return "medium" }
