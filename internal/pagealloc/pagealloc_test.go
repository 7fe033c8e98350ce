package pagealloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gspizzico/Zn-sub000/internal/vmem"
)

func newTestAllocator(t *testing.T, pages int) *PageAllocator {
	t.Helper()
	pageSize := vmem.GetPageSize()
	region, err := vmem.NewRegion(pageSize * uintptr(pages))
	require.NoError(t, err)
	t.Cleanup(func() { region.Release() })
	return New(region, pageSize)
}

func TestAllocateExactlyOnePage(t *testing.T) {
	pa := newTestAllocator(t, 8)
	addr, err := pa.Allocate()
	require.NoError(t, err)
	require.NotZero(t, addr)
	require.Equal(t, 1, pa.AllocatedPages())
	require.True(t, pa.IsAllocated(addr))
}

func TestFreeThenReallocateReusesPage(t *testing.T) {
	pa := newTestAllocator(t, 4)
	a1, err := pa.Allocate()
	require.NoError(t, err)
	pa.Free(a1)
	require.False(t, pa.IsAllocated(a1))

	a2, err := pa.Allocate()
	require.NoError(t, err)
	require.Equal(t, a1, a2, "freed page should be reused LIFO before committing new pages")
}

func TestInvariantAllocatedLECommittedLETotal(t *testing.T) {
	pa := newTestAllocator(t, 16)
	var addrs []uintptr
	for i := 0; i < 10; i++ {
		a, err := pa.Allocate()
		require.NoError(t, err)
		addrs = append(addrs, a)
		require.LessOrEqual(t, pa.AllocatedPages(), pa.CommittedPages())
		require.LessOrEqual(t, pa.CommittedPages(), pa.TotalPages())
	}
	for _, a := range addrs {
		pa.Free(a)
		require.LessOrEqual(t, pa.AllocatedPages(), pa.CommittedPages())
		require.LessOrEqual(t, pa.CommittedPages(), pa.TotalPages())
	}
}

func TestOutOfPages(t *testing.T) {
	pa := newTestAllocator(t, 2)
	_, err := pa.Allocate()
	require.NoError(t, err)
	_, err = pa.Allocate()
	require.NoError(t, err)
	_, err = pa.Allocate()
	require.ErrorIs(t, err, ErrOutOfPages)
}

// TestDecommitHysteresis allocates 100 pages then frees 70 in reverse
// order. Committed pages
// should fall from 100 toward roughly the 0.8 high-watermark, then
// freeing the rest should drop it again without ever decommitting pages
// still needed to serve nextFreePage.
func TestDecommitHysteresis(t *testing.T) {
	pa := newTestAllocator(t, 100)
	addrs := make([]uintptr, 0, 100)
	for i := 0; i < 100; i++ {
		a, err := pa.Allocate()
		require.NoError(t, err)
		addrs = append(addrs, a)
	}
	require.Equal(t, 100, pa.CommittedPages())

	for i := len(addrs) - 1; i >= len(addrs)-70; i-- {
		pa.Free(addrs[i])
	}
	require.Less(t, pa.CommittedPages(), 100)
	require.GreaterOrEqual(t, pa.CommittedPages(), pa.AllocatedPages())

	for i := len(addrs) - 71; i >= 0; i-- {
		pa.Free(addrs[i])
	}
	require.Equal(t, 0, pa.AllocatedPages())
}
