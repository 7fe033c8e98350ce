package slab

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gspizzico/Zn-sub000/internal/pagealloc"
	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

func newTestFSA(t *testing.T, allocationSize uintptr, pageSize uintptr, regionPages int) *FixedSizeAllocator {
	t.Helper()
	region, err := vmem.NewRegion(pageSize * uintptr(regionPages))
	require.NoError(t, err)
	t.Cleanup(func() { region.Release() })
	pages := pagealloc.New(region, pageSize)
	return New(allocationSize, pages)
}

func TestAllocateIsEightByteAligned(t *testing.T) {
	fsa := newTestFSA(t, 24, 16*1024, 16)
	addr, err := fsa.Allocate()
	require.NoError(t, err)
	require.Zero(t, addr%8)
}

func TestFreeFullPageReturnsItToPageAllocator(t *testing.T) {
	fsa := newTestFSA(t, 256, 4096, 4)
	var blocks []uintptr
	for i := 0; i < fsa.MaxBlocksPerPage(); i++ {
		b, err := fsa.Allocate()
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	page := blocks[0] - blocks[0]%4096
	require.True(t, fsa.Owns(page))

	for _, b := range blocks {
		require.NoError(t, fsa.Free(b))
	}
	require.False(t, fsa.Owns(page), "page should have been returned to the PageAllocator once empty")
}

func TestWrongAllocatorFreeIsDetected(t *testing.T) {
	region, err := vmem.NewRegion(4096 * 8)
	require.NoError(t, err)
	t.Cleanup(func() { region.Release() })
	pages := pagealloc.New(region, 4096)

	a := New(32, pages)
	b := New(64, pages)

	addr, err := a.Allocate()
	require.NoError(t, err)

	err = b.Free(addr)
	require.ErrorIs(t, err, ErrNotOwned)
}

// TestChurn allocates 3000 blocks, frees 1500 chosen uniformly at random,
// then allocates another 3000, exercising free-list reuse under churn.
func TestChurn(t *testing.T) {
	fsa := newTestFSA(t, 24, 16*1024, 256)
	rng := rand.New(rand.NewSource(42))

	var live []uintptr
	for i := 0; i < 3000; i++ {
		b, err := fsa.Allocate()
		require.NoError(t, err)
		require.Zero(t, b%8)
		live = append(live, b)
	}

	rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	toFree := live[:1500]
	live = live[1500:]
	for _, b := range toFree {
		require.NoError(t, fsa.Free(b))
	}

	for i := 0; i < 3000; i++ {
		b, err := fsa.Allocate()
		require.NoError(t, err)
		require.Zero(t, b%8)
		live = append(live, b)
	}
}
