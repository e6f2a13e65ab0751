package ref

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arena/alloc"
)

// SelfRef lets an object in allocator memory refer back to its own control block. It is plain
// data, holds no count, and is only meaningful while the object it was handed to is alive.
type SelfRef struct {
	allocator uint64
	control   alloc.MemID
}

func (s SelfRef) IsNull() bool {
	return s.control == alloc.MemNull
}

// SelfBinder is implemented by types that want a SelfRef. MakeRef and NewRef call BindSelf
// after the object has been constructed and its control block exists.
type SelfBinder interface {
	BindSelf(self SelfRef)
}

func bindSelf(obj any, self SelfRef) {
	binder, ok := obj.(SelfBinder)
	if ok {
		binder.BindSelf(self)
	}
}

// LockSelf returns a new strong reference from a SelfRef, or a null Ref if s is null or the
// object is being destroyed. a must be the allocator the object was created in, and T must be
// the object's type or a type it embeds at offset zero.
func LockSelf[T any](a alloc.Allocator, s SelfRef) Ref[T] {
	if s.IsNull() {
		return Ref[T]{}
	}
	if a == nil || a.ID() != s.allocator {
		panic(cerrors.AssertionFailedf("self reference belongs to allocator %d, but %d was given", s.allocator, allocatorID(a)))
	}

	cb := block(a, s.control)
	if cb.self != s.control || cb.allocator != s.allocator {
		panic(cerrors.AssertionFailedf("self reference to control block %d is stale", s.control))
	}

	live := alloc.TypeByID(cb.typeID)
	if live == nil || !embedsAtZero(live, typeOf[T]()) {
		panic(cerrors.AssertionFailedf("self reference to %v cannot be locked as %v", live, typeOf[T]()))
	}

	if !tryRetainStrong(a, s.control) {
		return Ref[T]{}
	}
	return Ref[T]{alloc: a, control: s.control}
}
