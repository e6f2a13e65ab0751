package ref_test

import (
	"sync/atomic"
	"testing"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/alloc/checked"
	"github.com/vkngwrapper/arena/alloc/pool"
	"github.com/vkngwrapper/arena/ref"
)

// lifecycle counts constructions and destructions per slot, since objects in allocator memory
// cannot point back at Go memory
type lifecycle struct {
	created   atomic.Int32
	destroyed atomic.Int32
}

var slots [16]lifecycle

const (
	slotCopy = iota
	slotWeak
	slotMove
	slotConcurrentA
	slotConcurrentB
	slotRace
	slotRollback
	slotChecked
	slotDerived
	slotUnique
	slotUniqueOther
	slotSelf
)

type tracked struct {
	Slot  int64
	Value int64
}

func (t *tracked) Destruct() {
	slots[t.Slot].destroyed.Add(1)
}

func track(slot int) func(obj *tracked) {
	slots[slot].created.Store(0)
	slots[slot].destroyed.Store(0)

	return func(obj *tracked) {
		obj.Slot = int64(slot)
		slots[slot].created.Add(1)
	}
}

func requireLifecycle(t *testing.T, slot int, created, destroyed int32) {
	require.Equal(t, created, slots[slot].created.Load(), "created")
	require.Equal(t, destroyed, slots[slot].destroyed.Load(), "destroyed")
}

func newAlignedPool(t *testing.T, capacity int) *pool.AlignedPool {
	p, err := pool.NewAlignedPool(nil, pool.CreateOptions{Capacity: capacity})
	require.NoError(t, err)
	return p
}

func TestRefCopyIsShared(t *testing.T) {
	p := newAlignedPool(t, 1024)

	r, err := ref.MakeRef(p, track(slotCopy))
	require.NoError(t, err)
	require.Equal(t, 1, r.StrongCount())
	require.Equal(t, 0, r.WeakCount())

	c := r.Clone()
	c.Get().Value = 42
	require.Equal(t, int64(42), r.Get().Value)
	require.True(t, r.Equal(c))
	require.Equal(t, r.Hash(), c.Hash())
	require.Equal(t, 2, r.StrongCount())

	r.Release()
	require.True(t, r.IsNull())
	require.Nil(t, r.Get())
	require.Equal(t, 1, c.StrongCount())
	requireLifecycle(t, slotCopy, 1, 0)

	c.Release()
	c.Release()
	requireLifecycle(t, slotCopy, 1, 1)
	require.True(t, p.IsEmpty())
	require.NoError(t, p.Validate())
}

func TestRefWeakLifecycle(t *testing.T) {
	p := newAlignedPool(t, 1024)

	var w ref.RefWeak[tracked]
	require.False(t, w.IsValid())
	nullLock := w.Lock()
	require.True(t, nullLock.IsNull())

	r, err := ref.MakeRef(p, track(slotWeak))
	require.NoError(t, err)

	w = r.Weak()
	require.True(t, w.IsValid())
	require.True(t, w.Refers(&r))
	require.Equal(t, 1, r.WeakCount())
	require.Equal(t, 1, r.StrongCount())

	locked := w.Lock()
	require.False(t, locked.IsNull())
	require.True(t, locked.Equal(r))
	require.Equal(t, 2, r.StrongCount())
	locked.Release()

	other := ref.NewWeak(&r)
	require.True(t, other.Equal(w))
	require.Equal(t, 2, r.WeakCount())
	other.Release()

	r.Release()
	requireLifecycle(t, slotWeak, 1, 1)
	require.False(t, w.IsValid())
	expired := w.Lock()
	require.True(t, expired.IsNull())
	require.Equal(t, 0, w.StrongCount())
	require.Equal(t, 1, w.WeakCount())

	// The control block outlives the object while a weak reference exists
	require.False(t, p.IsEmpty())
	w.Release()
	require.True(t, p.IsEmpty())
	require.Equal(t, 1024, p.RemainSize())
}

func TestRefMoveAndAssign(t *testing.T) {
	p := newAlignedPool(t, 1024)

	construct := track(slotMove)
	first, err := ref.MakeRef(p, construct)
	require.NoError(t, err)
	second, err := ref.MakeRef(p, construct)
	require.NoError(t, err)

	moved := first.Take()
	require.True(t, first.IsNull())
	require.Equal(t, 1, moved.StrongCount())

	moved.Assign(moved)
	require.Equal(t, 1, moved.StrongCount())

	moved.Assign(second)
	require.True(t, moved.Equal(second))
	require.Equal(t, 2, second.StrongCount())
	requireLifecycle(t, slotMove, 2, 1)

	var empty ref.Ref[tracked]
	moved.Assign(empty)
	require.True(t, moved.IsNull())
	require.Equal(t, 1, second.StrongCount())

	w := second.Weak()
	var w2 ref.RefWeak[tracked]
	w2.Assign(w)
	require.Equal(t, 2, second.WeakCount())
	w3 := w2.Take()
	require.True(t, w2.IsNull())
	require.Equal(t, 2, second.WeakCount())

	second.Release()
	w.Release()
	w3.Release()
	requireLifecycle(t, slotMove, 2, 2)
	require.True(t, p.IsEmpty())
}

func TestRefNullComparisons(t *testing.T) {
	p := newAlignedPool(t, 256)

	var null ref.Ref[tracked]
	require.True(t, null.EqualID(alloc.MemNull))
	require.True(t, null.EqualPointer(nil))

	r, err := ref.MakeRef(p, track(slotCopy))
	require.NoError(t, err)
	require.False(t, r.EqualID(alloc.MemNull))
	require.False(t, r.EqualPointer(nil))
	require.False(t, r.Equal(null))

	require.Panics(t, func() { r.EqualID(alloc.MemID(8)) })
	require.Panics(t, func() { r.EqualPointer(unsafe.Pointer(r.Get())) })
	require.Panics(t, func() { null.EqualID(alloc.MemID(8)) })

	w := r.Weak()
	require.False(t, w.EqualID(alloc.MemNull))
	require.False(t, w.EqualPointer(nil))
	require.Panics(t, func() { w.EqualID(alloc.MemID(8)) })
	require.Panics(t, func() { w.EqualPointer(unsafe.Pointer(r.Get())) })

	var nullWeak ref.RefWeak[tracked]
	require.True(t, nullWeak.EqualPointer(nil))

	w.Release()
	r.Release()
	require.True(t, p.IsEmpty())
}

func TestNewRef(t *testing.T) {
	p := newAlignedPool(t, 256)

	null, err := ref.NewRef[tracked](p, alloc.MemNull)
	require.NoError(t, err)
	require.True(t, null.IsNull())

	require.Panics(t, func() {
		_, _ = ref.NewRef[tracked](nil, alloc.MemID(8))
	})

	id, err := alloc.CreateObj(p, track(slotCopy))
	require.NoError(t, err)

	r, err := ref.NewRef[tracked](p, id)
	require.NoError(t, err)
	require.Equal(t, unsafe.Pointer(r.Get()), p.Get(id))

	r.Release()
	requireLifecycle(t, slotCopy, 1, 1)
	require.True(t, p.IsEmpty())
}

func TestMakeRefRollsBack(t *testing.T) {
	// Room for the object but not for its control block
	p := newAlignedPool(t, 32)

	_, err := ref.MakeRef(p, track(slotRollback))
	require.True(t, cerrors.Is(err, alloc.ErrOutOfMemory))
	requireLifecycle(t, slotRollback, 1, 1)
	require.True(t, p.IsEmpty())
	require.Equal(t, 32, p.RemainSize())
}

func TestMakeRefRejectsMovingAllocators(t *testing.T) {
	p, err := pool.NewFixedSizePool(nil, pool.FixedSizeCreateOptions{ElementSize: 64, MaxElements: 4})
	require.NoError(t, err)

	_, err = ref.MakeRef[tracked](p, nil)
	require.True(t, cerrors.Is(err, ref.ErrAddressMayMove))
	require.True(t, p.IsEmpty())

	type withPointer struct {
		Next *tracked
	}
	_, err = ref.MakeRef[withPointer](newAlignedPool(t, 256), nil)
	require.True(t, cerrors.Is(err, alloc.ErrNotPlainData))
}

func TestRefCheckedAllocator(t *testing.T) {
	a := checked.NewAllocator(nil, newAlignedPool(t, 4096))

	r, err := ref.MakeRef(a, track(slotChecked))
	require.NoError(t, err)
	w := r.Weak()
	clones := []ref.Ref[tracked]{r.Clone(), r.Clone(), w.Lock()}
	require.Equal(t, 2, a.LiveCount())

	for i := range clones {
		clones[i].Release()
	}
	r.Release()
	require.Equal(t, 1, a.LiveCount())

	w.Release()
	a.AssertSize(t, 0)
	requireLifecycle(t, slotChecked, 1, 1)
}
