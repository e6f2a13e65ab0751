package ref

import (
	"unsafe"

	"github.com/vkngwrapper/arena/alloc"
)

// RefWeak observes an object owned by Refs without keeping it alive. It keeps the object's
// control block alive, so it can always tell whether the object still exists.
//
// The zero RefWeak is null.
type RefWeak[T any] struct {
	alloc   alloc.Allocator
	control alloc.MemID
}

func (w *RefWeak[T]) IsNull() bool {
	return w.control == alloc.MemNull
}

// IsValid reports whether the object was alive at the time of the call. Another goroutine may
// release it immediately after; call Lock and check its result instead when the object is
// about to be used.
func (w *RefWeak[T]) IsValid() bool {
	return strongCount(w.alloc, w.control) != 0
}

// Lock returns a strong reference to the object, or a null Ref if it has already been destroyed
func (w *RefWeak[T]) Lock() Ref[T] {
	if w.control == alloc.MemNull || !tryRetainStrong(w.alloc, w.control) {
		return Ref[T]{}
	}
	return Ref[T]{alloc: w.alloc, control: w.control}
}

// Clone returns a new weak reference to the same object
func (w *RefWeak[T]) Clone() RefWeak[T] {
	if w.control != alloc.MemNull {
		retainWeak(w.alloc, w.control)
	}
	return RefWeak[T]{alloc: w.alloc, control: w.control}
}

// Take moves the reference out of w, leaving w null
func (w *RefWeak[T]) Take() RefWeak[T] {
	taken := *w
	*w = RefWeak[T]{}
	return taken
}

// Release drops w's weak reference and leaves w null
func (w *RefWeak[T]) Release() {
	if w.control == alloc.MemNull {
		return
	}

	a, control := w.alloc, w.control
	*w = RefWeak[T]{}
	releaseWeak(a, control)
}

// Assign makes w another weak reference to other's object, releasing what w held before
func (w *RefWeak[T]) Assign(other RefWeak[T]) {
	if w.Equal(other) {
		return
	}

	clone := other.Clone()
	w.Release()
	*w = clone
}

func (w *RefWeak[T]) StrongCount() int {
	return strongCount(w.alloc, w.control)
}

func (w *RefWeak[T]) WeakCount() int {
	return weakCount(w.alloc, w.control)
}

// Equal reports whether w and other observe the same object
func (w *RefWeak[T]) Equal(other RefWeak[T]) bool {
	return w.control == other.control && allocatorID(w.alloc) == allocatorID(other.alloc)
}

// Refers reports whether w observes the object r refers to
func (w *RefWeak[T]) Refers(r *Ref[T]) bool {
	return w.control == r.control && allocatorID(w.alloc) == allocatorID(r.alloc)
}

func (w *RefWeak[T]) EqualID(id alloc.MemID) bool {
	checkNullID(id)
	return w.IsNull()
}

// EqualPointer compares w with a nil pointer. Comparing a weak reference with any other address
// panics.
func (w *RefWeak[T]) EqualPointer(p unsafe.Pointer) bool {
	checkNullPointer(p == nil)
	return w.IsNull()
}

func (w *RefWeak[T]) Hash() uint64 {
	return identityHash(w.alloc, w.control)
}
