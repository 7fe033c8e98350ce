package toplevel

import "errors"

// ErrUnroutable is returned when Free is given an address no strategy
// recognizes.
var ErrUnroutable = errors.New("toplevel: address does not belong to any strategy")

// Config sizes the address space reserved up front for each pooled
// strategy. Direct allocations reserve their own region per call and need
// no capacity here.
type Config struct {
	TinyRegionCapacity  uintptr
	SmallRegionCapacity uintptr
	MediumRegionCapacity uintptr
}

// DefaultConfig reserves a modest address range per pooled strategy —
// reservation is cheap (no physical memory is touched until committed),
// so these can be generous.
func DefaultConfig() Config {
	return Config{
		TinyRegionCapacity:   64 * 1024 * 1024,
		SmallRegionCapacity:  256 * 1024 * 1024,
		MediumRegionCapacity: 512 * 1024 * 1024,
	}
}

// TopAllocator routes requests to one of four strategies by size and
// remembers nothing about live allocations itself — it is a pure router,
// holding no lock of its own, so it never has to reason about lock
// ordering against the strategies it dispatches into.
type TopAllocator struct {
	tiny   *tinyStrategy
	small  *smallBucketStrategy
	medium *mediumStrategy
	direct *directStrategy

	strategies []strategy
}

// New builds a TopAllocator with its four strategies' backing regions
// reserved according to cfg.
func New(cfg Config) (*TopAllocator, error) {
	tiny, err := newTinyStrategy(cfg.TinyRegionCapacity)
	if err != nil {
		return nil, err
	}
	small, err := newSmallBucketStrategy(cfg.SmallRegionCapacity)
	if err != nil {
		return nil, err
	}
	medium, err := newMediumStrategy(cfg.MediumRegionCapacity)
	if err != nil {
		return nil, err
	}
	direct := newDirectStrategy()

	return &TopAllocator{
		tiny:       tiny,
		small:      small,
		medium:     medium,
		direct:     direct,
		strategies: []strategy{tiny, small, medium, direct},
	}, nil
}

// Malloc routes size to the strategy whose range covers it.
func (t *TopAllocator) Malloc(size uintptr) (uintptr, error) {
	switch {
	case size <= tinyMaxSize:
		return t.tiny.tryMalloc(size)
	case size <= smallMaxSize:
		return t.small.tryMalloc(size)
	case size <= mediumMaxSize:
		return t.medium.tryMalloc(size)
	default:
		return t.direct.tryMalloc(size)
	}
}

// Free locates the strategy owning addr and frees it there.
func (t *TopAllocator) Free(addr uintptr) error {
	for _, s := range t.strategies {
		if s.tryFree(addr) {
			return nil
		}
	}
	return ErrUnroutable
}

// Owns reports whether addr was handed out by any strategy.
func (t *TopAllocator) Owns(addr uintptr) bool {
	for _, s := range t.strategies {
		if s.owns(addr) {
			return true
		}
	}
	return false
}
