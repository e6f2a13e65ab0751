package checked_test

import (
	"fmt"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/alloc/checked"
	"github.com/vkngwrapper/arena/alloc/mocks"
	"github.com/vkngwrapper/arena/alloc/pool"
	"go.uber.org/mock/gomock"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) Helper() {}

func newChecked(t *testing.T) *checked.Allocator {
	p, err := pool.NewAlignedPool(nil, pool.CreateOptions{Capacity: 1024})
	require.NoError(t, err)
	return checked.NewAllocator(nil, p)
}

func TestCheckedAllocatorBalanced(t *testing.T) {
	a := newChecked(t)
	scope := checked.NewScope(a)

	mem1, err := a.Allocate(24, 8)
	require.NoError(t, err)
	mem2, err := a.Allocate(10, 0)
	require.NoError(t, err)
	require.Equal(t, 34, a.CurrentAlloc())
	require.Equal(t, 2, a.LiveCount())

	require.NoError(t, a.Deallocate(mem1))
	require.NoError(t, a.Deallocate(mem2))

	scope.CheckSize(t)
	a.AssertSize(t, 0)
	require.Equal(t, 0, a.LogLeaks())
}

func TestCheckedAllocatorReportsLeaks(t *testing.T) {
	a := newChecked(t)

	_, err := a.Allocate(16, 0)
	require.NoError(t, err)

	recorder := &recordingT{}
	a.AssertSize(recorder, 0)
	require.Len(t, recorder.errors, 2)
	require.Contains(t, recorder.errors[0], "LEAK of 16 bytes")
	require.Contains(t, recorder.errors[1], "exp=0, got=16")

	require.Equal(t, 1, a.LogLeaks())

	a.Clear()
	a.AssertSize(t, 0)
}

func TestCheckedAllocatorIgnoresFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockAllocator(ctrl)
	a := checked.NewAllocator(nil, inner)

	inner.EXPECT().Allocate(64, uint(8)).Return(alloc.MemNull, alloc.ErrOutOfMemory)
	inner.EXPECT().Allocate(0, uint(8)).Return(alloc.MemNull, nil)
	inner.EXPECT().Deallocate(alloc.MemID(16)).Return(alloc.ErrInvalidHandle)
	inner.EXPECT().Traits().Return(alloc.TraitPool)
	inner.EXPECT().ID().Return(uint64(77))

	_, err := a.Allocate(64, 8)
	require.True(t, cerrors.Is(err, alloc.ErrOutOfMemory))
	id, err := a.Allocate(0, 8)
	require.NoError(t, err)
	require.Equal(t, alloc.MemNull, id)
	require.True(t, cerrors.Is(a.Deallocate(16), alloc.ErrInvalidHandle))

	require.Equal(t, alloc.TraitPool, a.Traits())
	require.Equal(t, uint64(77), a.ID())
	a.AssertSize(t, 0)
}
