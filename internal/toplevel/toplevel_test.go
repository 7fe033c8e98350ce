package toplevel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTop(t *testing.T) *TopAllocator {
	t.Helper()
	top, err := New(Config{
		TinyRegionCapacity:   8 * 1024 * 1024,
		SmallRegionCapacity:  16 * 1024 * 1024,
		MediumRegionCapacity: 32 * 1024 * 1024,
	})
	require.NoError(t, err)
	return top
}

func TestTinySizeRoutesToTinyStrategy(t *testing.T) {
	top := newTestTop(t)
	addr, err := top.Malloc(64)
	require.NoError(t, err)
	require.True(t, top.tiny.owns(addr))
	require.False(t, top.small.owns(addr))
}

func TestSmallSizeRoutesToSmallStrategy(t *testing.T) {
	top := newTestTop(t)
	addr, err := top.Malloc(2000)
	require.NoError(t, err)
	require.True(t, top.small.owns(addr))
}

func TestMediumSizeRoutesToMediumStrategy(t *testing.T) {
	top := newTestTop(t)
	addr, err := top.Malloc(64 * 1024)
	require.NoError(t, err)
	require.True(t, top.medium.owns(addr))
}

func TestDirectSizeRoutesToDirectStrategy(t *testing.T) {
	top := newTestTop(t)
	addr, err := top.Malloc(4 * 1024 * 1024)
	require.NoError(t, err)
	require.True(t, top.direct.owns(addr))
	require.NoError(t, top.Free(addr))
}

// TestCrossStrategyRouting allocates at least one block from each size
// class, frees them all through the single TopAllocator.Free entry point
// without the caller tracking which strategy served which pointer, then
// checks ownership afterwards: Owns is range containment, so the tiny and
// small pages and the direct region are gone once their only block is
// freed, while the medium strategy's TLSF arena is kept and still contains
// its address.
func TestCrossStrategyRouting(t *testing.T) {
	top := newTestTop(t)
	sizes := []uintptr{32, 200, 4096, 100 * 1024, 3 * 1024 * 1024}

	var addrs []uintptr
	for _, size := range sizes {
		addr, err := top.Malloc(size)
		require.NoError(t, err, "size %d", size)
		require.True(t, top.Owns(addr), "size %d", size)
		addrs = append(addrs, addr)
	}

	for i, addr := range addrs {
		require.NoError(t, top.Free(addr), "addr %d", i)
		inMedium := sizes[i] > smallMaxSize && sizes[i] <= mediumMaxSize
		require.Equal(t, inMedium, top.Owns(addr), "addr %d", i)
	}
}

func TestFreeUnroutableAddressIsDetected(t *testing.T) {
	top := newTestTop(t)
	err := top.Free(0x1000)
	require.ErrorIs(t, err, ErrUnroutable)
}
