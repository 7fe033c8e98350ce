package tlsf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

func newTestAllocator(t *testing.T, pageSize uintptr, pageCount int) *Allocator {
	t.Helper()
	region, err := vmem.NewRegion(pageSize * uintptr(pageCount))
	require.NoError(t, err)
	t.Cleanup(func() { region.Release() })
	pages := pagealloc.New(region, pageSize)
	return New(pages, Config{})
}

func TestAllocateReturnsAlignedBlock(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 4)
	addr, err := a.Allocate(100)
	require.NoError(t, err)
	require.Zero(t, addr%8)
	require.True(t, a.Owns(addr))
}

func TestFreeThenReallocateCoalesces(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 4)
	p1, err := a.Allocate(4096)
	require.NoError(t, err)
	p2, err := a.Allocate(4096)
	require.NoError(t, err)

	require.NoError(t, a.Free(p1))
	require.NoError(t, a.Free(p2))

	big, err := a.Allocate(8000)
	require.NoError(t, err)
	require.True(t, a.Owns(big))
}

func TestFreeingUnknownAddressIsDetected(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 4)
	var bogus uintptr = 0x1000
	err := a.Free(bogus)
	require.ErrorIs(t, err, ErrNotOwned)
}

func TestRequestLargerThanMaxIsRejected(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 4)
	_, err := a.Allocate(a.MaxAllocationSize() + 1)
	require.ErrorIs(t, err, ErrTooLarge)
}

// TestFillAndDrainChurn allocates a mix of block sizes until a page's
// worth of requests are outstanding, frees them in random order, then
// repeats, exercising split/coalesce under churn.
func TestFillAndDrainChurn(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 64)
	rng := rand.New(rand.NewSource(7))
	sizes := []uintptr{32, 96, 512, 1024, 4096}

	for round := 0; round < 5; round++ {
		var live []uintptr
		for i := 0; i < 500; i++ {
			size := sizes[rng.Intn(len(sizes))]
			addr, err := a.Allocate(size)
			require.NoError(t, err)
			require.Zero(t, addr%8)
			live = append(live, addr)
		}
		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		for _, addr := range live {
			require.NoError(t, a.Free(addr))
		}
	}
}

func TestGrowsWhenArenaExhausted(t *testing.T) {
	a := newTestAllocator(t, 128*1024, 16)
	var live []uintptr
	for i := 0; i < 64; i++ {
		addr, err := a.Allocate(4096)
		require.NoError(t, err)
		live = append(live, addr)
	}
	require.Greater(t, len(a.arenas), 1, "64 4KiB allocations should not fit in a single 128KiB page")
	for _, addr := range live {
		require.NoError(t, a.Free(addr))
	}
}
