package stackalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T, capacity uintptr) *StackAllocator {
	t.Helper()
	s, err := New(capacity)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestAllocateBumpsTop(t *testing.T) {
	s := newTestStack(t, 1<<20)
	start := s.Top()
	addr, err := s.Allocate(128, 8)
	require.NoError(t, err)
	require.Equal(t, start, addr)
	require.Equal(t, start+128, s.Top())
}

func TestFreeAboveTopIsIgnored(t *testing.T) {
	s := newTestStack(t, 1<<20)
	_, err := s.Allocate(64, 8)
	require.NoError(t, err)
	top := s.Top()
	s.Free(top + 1000) // above top: ignored
	require.Equal(t, top, s.Top())
}

func TestFreeBelowTopTruncates(t *testing.T) {
	s := newTestStack(t, 1<<20)
	addr, err := s.Allocate(64, 8)
	require.NoError(t, err)
	_, err = s.Allocate(64, 8)
	require.NoError(t, err)
	s.Free(addr)
	require.Equal(t, addr, s.Top())
}

// TestSavepointNesting allocates 1MiB, saves, allocates 2MiB, saves,
// allocates 4MiB, then restores twice; top must land back on the value
// recorded right after the initial 1MiB allocation.
func TestSavepointNesting(t *testing.T) {
	s := newTestStack(t, 16<<20)
	_, err := s.Allocate(1<<20, 8)
	require.NoError(t, err)
	afterFirst := s.Top()

	s.SaveStatus()
	_, err = s.Allocate(2<<20, 8)
	require.NoError(t, err)

	s.SaveStatus()
	_, err = s.Allocate(4<<20, 8)
	require.NoError(t, err)

	s.RestoreStatus()
	s.RestoreStatus()

	require.Equal(t, afterFirst, s.Top())
}

func TestScopeRestoresOnClose(t *testing.T) {
	s := newTestStack(t, 1<<20)
	before := s.Top()
	func() {
		scope := s.Save()
		defer scope.Close()
		_, err := s.Allocate(256, 8)
		require.NoError(t, err)
	}()
	require.Equal(t, before, s.Top())
}

func TestOutOfSpace(t *testing.T) {
	s := newTestStack(t, 4096)
	_, err := s.Allocate(1<<20, 8)
	require.ErrorIs(t, err, ErrOutOfSpace)
}
