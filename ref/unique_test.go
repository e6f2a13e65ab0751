package ref_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/alloc/mocks"
	"github.com/vkngwrapper/arena/alloc/pool"
	"github.com/vkngwrapper/arena/ref"
	"go.uber.org/mock/gomock"
)

func TestUniqueOwnership(t *testing.T) {
	p := newAlignedPool(t, 1024)

	u, err := ref.MakeUnique(p, track(slotUnique))
	require.NoError(t, err)
	require.False(t, u.IsNull())
	require.True(t, p.IsInPool(u.ID()))

	u.Get().Value = 9
	moved := u.Take()
	require.True(t, u.IsNull())
	require.Nil(t, u.Get())
	require.Equal(t, int64(9), moved.Get().Value)

	other, err := ref.MakeUnique(p, track(slotUniqueOther))
	require.NoError(t, err)

	// Assigning destroys the object moved already owned
	moved.Assign(&other)
	require.True(t, other.IsNull())
	requireLifecycle(t, slotUnique, 1, 1)
	requireLifecycle(t, slotUniqueOther, 1, 0)

	moved.Assign(&moved)
	require.False(t, moved.IsNull())

	moved.Reset()
	moved.Reset()
	requireLifecycle(t, slotUniqueOther, 1, 1)
	require.True(t, p.IsEmpty())
}

func TestUniqueNullComparisons(t *testing.T) {
	var null ref.Unique[tracked]
	require.True(t, null.EqualID(alloc.MemNull))
	require.True(t, null.EqualPointer(nil))
	require.Panics(t, func() { null.EqualID(alloc.MemID(16)) })

	p, err := pool.NewPool(nil, pool.CreateOptions{Capacity: 128})
	require.NoError(t, err)

	bytes, err := ref.MakeUnique(p, func(b *[4]byte) { b[0] = 1 })
	require.NoError(t, err)
	require.False(t, bytes.EqualID(alloc.MemNull))
	require.Panics(t, func() { bytes.EqualPointer(unsafe.Pointer(bytes.Get())) })

	require.Panics(t, func() { ref.NewUnique[tracked](nil, alloc.MemID(16)) })
	adopted := ref.NewUnique[tracked](nil, alloc.MemNull)
	require.True(t, adopted.IsNull())

	bytes.Reset()
	require.True(t, p.IsEmpty())
}

func TestUniqueUpcastKeepsDestructor(t *testing.T) {
	p := newAlignedPool(t, 512)
	track(slotDerived)

	derived, err := ref.MakeUnique(p, func(c *circle) {
		c.Kind = 2
		c.Slot = slotDerived
	})
	require.NoError(t, err)

	base := ref.UpcastUnique[shape](&derived)
	require.True(t, derived.IsNull())
	require.Equal(t, int32(2), base.Get().Kind)

	base.Reset()
	requireLifecycle(t, slotDerived, 0, 1)
	require.True(t, p.IsEmpty())

	require.Panics(t, func() {
		var u ref.Unique[circle]
		ref.UpcastUnique[unrelated](&u)
	})
}

func TestUniqueResetCallsAllocator(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	storage := tracked{Slot: slotUnique}
	track(slotUnique)

	gomock.InOrder(
		allocator.EXPECT().Get(alloc.MemID(24)).Return(unsafe.Pointer(&storage)),
		allocator.EXPECT().Deallocate(alloc.MemID(24)).Return(nil),
	)

	u := ref.NewUnique[tracked](allocator, 24)
	require.Equal(t, allocator, u.Allocator())
	u.Reset()
	require.True(t, u.IsNull())
	require.Equal(t, int32(1), slots[slotUnique].destroyed.Load())

	// Nothing else reaches the allocator once the handle is gone
	u.Reset()
}

func TestUniqueResetPanicsOnBadHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	var storage tracked
	allocator.EXPECT().Get(alloc.MemID(24)).Return(unsafe.Pointer(&storage))
	allocator.EXPECT().Deallocate(alloc.MemID(24)).Return(alloc.ErrInvalidHandle)

	u := ref.NewUnique[tracked](allocator, 24)
	require.Panics(t, u.Reset)
}
