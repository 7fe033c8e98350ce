package galloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMallocFreeRoundTripOnFreshAllocator(t *testing.T) {
	g := &GlobalAllocator{}
	addr, err := g.Malloc(128)
	require.NoError(t, err)
	require.NotZero(t, addr)
	require.NoError(t, g.Free(addr))
}

func TestBootstrapPinsDefaultAllocator(t *testing.T) {
	g := &GlobalAllocator{useDefaultOnly: true}
	addr, err := g.Malloc(64)
	require.NoError(t, err)
	require.True(t, g.constructed)
	require.Nil(t, g.primary)
	require.NoError(t, g.Free(addr))
}

// TestBootstrapReentryUsesDefaultAllocator simulates ensureConstructed
// being entered while isConstructing is already set — as would happen if
// building the primary allocator itself needed to allocate — and checks
// that Malloc falls back to the bootstrap allocator rather than
// recursing into construction a second time.
func TestBootstrapReentryUsesDefaultAllocator(t *testing.T) {
	g := &GlobalAllocator{}
	g.isConstructing = 1
	g.primary = nil

	addr, err := g.Malloc(32)
	require.NoError(t, err)
	require.NotZero(t, addr)
	require.True(t, g.usingDefault())
	require.NoError(t, g.Free(addr))
}

func TestLargeAllocationRoutesThroughPrimary(t *testing.T) {
	g := &GlobalAllocator{}
	addr, err := g.Malloc(1 << 20)
	require.NoError(t, err)
	require.NotNil(t, g.primary)
	require.True(t, g.primary.Owns(addr))
	require.NoError(t, g.Free(addr))
}
