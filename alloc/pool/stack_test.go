package pool_test

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/alloc/pool"
)

func newStack(t *testing.T, capacity int) *pool.StackAllocator {
	s, err := pool.NewStackAllocator(testLogger(), pool.CreateOptions{Capacity: capacity})
	require.NoError(t, err)
	return s
}

func TestStackAllocatorLIFO(t *testing.T) {
	s := newStack(t, 256)

	mem1 := mustAllocate(t, s, 8)
	mem2 := mustAllocate(t, s, 16)
	mem3 := mustAllocate(t, s, 8)

	require.Equal(t, alloc.MemID(2*pool.WordSize), mem1)
	require.Equal(t, 8+16+8+6*pool.WordSize, s.StackPointer())
	require.Equal(t, 256-s.StackPointer(), s.RemainSize())

	require.True(t, cerrors.Is(s.Deallocate(mem1), alloc.ErrNotTop))
	require.True(t, cerrors.Is(s.Deallocate(mem2), alloc.ErrNotTop))
	require.True(t, cerrors.Is(s.Deallocate(mem1+8), alloc.ErrInvalidHandle))

	require.NoError(t, s.Deallocate(mem3))
	require.False(t, s.IsInPool(mem3))
	require.True(t, s.IsInPool(mem2))
	require.True(t, cerrors.Is(s.Deallocate(mem3), alloc.ErrInvalidHandle))

	require.NoError(t, s.Deallocate(mem2))
	require.NoError(t, s.Deallocate(mem1))
	require.True(t, s.IsEmpty())
	require.Equal(t, 0, s.StackPointer())
	require.Equal(t, 8+16+8+6*pool.WordSize, s.MaxDataSize())
}

func TestStackAllocatorPop(t *testing.T) {
	s := newStack(t, 128)

	s.Pop()
	require.True(t, s.IsEmpty())

	mem1 := mustAllocate(t, s, 8)
	mustAllocate(t, s, 8)

	s.Pop()
	require.True(t, s.IsInPool(mem1))
	require.Equal(t, 8+2*pool.WordSize, s.StackPointer())

	s.Pop()
	require.True(t, s.IsEmpty())
	require.Equal(t, 128, s.RemainSize())
}

func TestStackAllocatorMarkRewind(t *testing.T) {
	s := newStack(t, 512)

	keep := mustAllocate(t, s, 8)
	mark := s.Mark()

	for i := 0; i < 4; i++ {
		mustAllocate(t, s, 24)
	}
	require.NoError(t, s.Rewind(mark))
	require.Equal(t, 8+2*pool.WordSize, s.StackPointer())
	require.True(t, s.IsInPool(keep))
	require.False(t, s.IsEmpty())

	// A mark above the current position cannot be restored
	mustAllocate(t, s, 8)
	high := s.Mark()
	s.Pop()
	require.Error(t, s.Rewind(high))

	require.NoError(t, s.Deallocate(keep))
	require.True(t, s.IsEmpty())
}

func TestStackAllocatorRewindAfterPopBelowMark(t *testing.T) {
	s := newStack(t, 1024)

	first := mustAllocate(t, s, 8)
	mark := s.Mark()
	s.Pop()

	second := mustAllocateAligned(t, s, 8, 256)
	third := mustAllocate(t, s, 8)

	err := s.Rewind(mark)
	require.Error(t, err)
	require.False(t, s.IsInPool(first))
	require.True(t, s.IsInPool(second))
	require.True(t, s.IsInPool(third))
	require.True(t, cerrors.Is(s.Deallocate(first), alloc.ErrInvalidHandle))

	// A replacement at the same offset does not revive the mark either
	require.NoError(t, s.Deallocate(third))
	require.NoError(t, s.Deallocate(second))
	again := mustAllocate(t, s, 64)
	require.Equal(t, first, again)
	require.Error(t, s.Rewind(mark))
	require.Equal(t, 64+2*pool.WordSize, s.StackPointer())

	// Frames popped above a mark leave it usable
	inner := s.Mark()
	mustAllocate(t, s, 8)
	s.Pop()
	mustAllocate(t, s, 16)
	require.NoError(t, s.Rewind(inner))
	require.Equal(t, 64+2*pool.WordSize, s.StackPointer())

	s.Clear()
	require.NoError(t, s.Rewind(s.Mark()))
}

func TestStackAllocatorAlignment(t *testing.T) {
	s := newStack(t, 4096)

	for alignment := uint(1); alignment <= 512; alignment *= 2 {
		id, err := s.Allocate(8, alignment)
		require.NoError(t, err)
		require.Zero(t, uintptr(s.Get(id))%uintptr(alignment))
	}

	for !s.IsEmpty() {
		s.Pop()
	}
	require.Equal(t, 0, s.StackPointer())
}

func TestStackAllocatorOutOfMemory(t *testing.T) {
	s := newStack(t, 64)

	mustAllocate(t, s, 64-2*pool.WordSize)
	require.Equal(t, 0, s.RemainSize())

	_, err := s.Allocate(1, 0)
	require.True(t, cerrors.Is(err, alloc.ErrOutOfMemory))

	s.Clear()
	require.True(t, s.IsEmpty())
	require.Equal(t, 64, s.RemainSize())
}

func TestStackAllocatorString(t *testing.T) {
	s := newStack(t, 128)
	mustAllocate(t, s, 8)

	var decoded struct {
		Type         string `json:"type"`
		TotalSize    int    `json:"total_size"`
		StackPointer int    `json:"stack_pointer"`
		Available    int    `json:"available"`
	}
	require.NoError(t, json.Unmarshal([]byte(s.String()), &decoded))
	require.Equal(t, "StackAllocator", decoded.Type)
	require.Equal(t, 128, decoded.TotalSize)
	require.Equal(t, 24, decoded.StackPointer)
	require.Equal(t, 104, decoded.Available)
}
