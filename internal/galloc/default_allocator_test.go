package galloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
)

const quota = 16 << 20

var (
	churnMaxSmall = 2 * osPageSize
	churnMaxBig   = 2 * defaultPageSize
)

// churn drives a deterministic allocate/verify/shuffle/free cycle through
// the bootstrap allocator's address-based API, an FC32-seeded approach
// to fuzzing its free lists.
func churn(t *testing.T, max int) {
	t.Helper()
	var alloc defaultAllocator
	rem := quota
	var live []uintptr
	var sizes []int
	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)

	rng.Seed(42)
	pos := rng.Pos()
	for rem > 0 {
		size := rng.Next()%max + 1
		rem -= size
		addr, err := alloc.mallocPtr(size)
		require.NoError(t, err)
		live = append(live, addr)
		sizes = append(sizes, size)
		b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:size:size]
		for i := range b {
			b[i] = byte(rng.Next())
		}
	}

	rng.Seek(pos)
	for i, addr := range live {
		require.Equal(t, rng.Next()%max+1, sizes[i], "block %d", i)
		b := (*[1 << 30]byte)(unsafe.Pointer(addr))[:sizes[i]:sizes[i]]
		for j, got := range b {
			require.Equal(t, byte(rng.Next()), got, "block %d byte %d", i, j)
		}
	}

	for i := range live {
		j := rng.Next() % len(live)
		live[i], live[j] = live[j], live[i]
	}

	for _, addr := range live {
		require.NoError(t, alloc.freePtr(addr))
	}
	require.Zero(t, alloc.allocs)
	require.Zero(t, alloc.mmaps)
	require.Zero(t, alloc.bytes)
}

func TestChurnSmallBlocks(t *testing.T) { churn(t, churnMaxSmall) }
func TestChurnLargeBlocks(t *testing.T) { churn(t, churnMaxBig) }

func TestFreeOfZeroAddressIsNoop(t *testing.T) {
	var alloc defaultAllocator
	addr, err := alloc.mallocPtr(1)
	require.NoError(t, err)
	require.NoError(t, alloc.freePtr(addr))
	require.NoError(t, alloc.freePtr(0))
	require.Zero(t, alloc.allocs)
	require.Zero(t, alloc.mmaps)
	require.Zero(t, alloc.bytes)
}

// maxSlotSize is not a power of two, so its size class (the next power of
// two) exceeds it and the request gets a dedicated page (log 0).
func TestMallocAtMaxSlotSizeUsesDedicatedPage(t *testing.T) {
	var alloc defaultAllocator
	addr, err := alloc.mallocPtr(maxSlotSize)
	require.NoError(t, err)

	p := (*defaultPage)(unsafe.Pointer(addr &^ uintptr(osPageMask)))
	require.Zero(t, p.log)
	require.NoError(t, alloc.freePtr(addr))
}

func TestUsableSizeCoversRequestedSize(t *testing.T) {
	var alloc defaultAllocator
	addr, err := alloc.mallocPtr(40)
	require.NoError(t, err)
	require.GreaterOrEqual(t, usableSize(addr), 40)
	require.NoError(t, alloc.freePtr(addr))
}
