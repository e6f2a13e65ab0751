package ref

import (
	"unsafe"

	"github.com/vkngwrapper/arena/alloc"
)

// Ref is a strong, shared reference to a T in allocator memory. The payload is destroyed when
// the last Ref to it is released, and its control block once every RefWeak is gone as well.
//
// A Ref is a value, but copying the struct does not add a holder: use Clone to share and Take
// to move. Distinct Refs to the same object may be used from different goroutines, provided
// the allocator is safe for concurrent use. A single Ref variable may not.
//
// The zero Ref is null.
type Ref[T any] struct {
	alloc   alloc.Allocator
	control alloc.MemID
}

// MakeRef creates a T in a, passes it to init, and returns the only strong reference to it. If
// *T implements SelfBinder, BindSelf is called once the reference exists.
func MakeRef[T any](a alloc.Allocator, init func(obj *T)) (Ref[T], error) {
	err := checkSharedAllocator(a)
	if err != nil {
		return Ref[T]{}, err
	}

	typeID, err := alloc.RegisterType[T]()
	if err != nil {
		return Ref[T]{}, err
	}

	payload, err := alloc.CreateObj(a, init)
	if err != nil {
		return Ref[T]{}, err
	}

	control, err := newControl(a, payload, typeID)
	if err != nil {
		_ = alloc.DestroyObj[T](a, payload)
		return Ref[T]{}, err
	}

	r := Ref[T]{alloc: a, control: control}
	bindSelf(r.Get(), SelfRef{allocator: a.ID(), control: control})
	return r, nil
}

// NewRef takes ownership of a T that was created in a with alloc.CreateObj. A null id returns a
// null Ref. A non-null id without an allocator panics.
func NewRef[T any](a alloc.Allocator, id alloc.MemID) (Ref[T], error) {
	checkAdopt(a, id)
	if id == alloc.MemNull {
		return Ref[T]{}, nil
	}

	err := checkSharedAllocator(a)
	if err != nil {
		return Ref[T]{}, err
	}

	typeID, err := alloc.RegisterType[T]()
	if err != nil {
		return Ref[T]{}, err
	}

	control, err := newControl(a, id, typeID)
	if err != nil {
		return Ref[T]{}, err
	}

	r := Ref[T]{alloc: a, control: control}
	bindSelf(r.Get(), SelfRef{allocator: a.ID(), control: control})
	return r, nil
}

func (r *Ref[T]) IsNull() bool {
	return r.control == alloc.MemNull
}

// Get returns the referenced object, or nil for a null Ref
func (r *Ref[T]) Get() *T {
	if r.control == alloc.MemNull {
		return nil
	}
	return (*T)(r.alloc.Get(block(r.alloc, r.control).payload))
}

// Allocator returns the allocator the object lives in, or nil for a null Ref
func (r *Ref[T]) Allocator() alloc.Allocator {
	return r.alloc
}

// Clone returns a new strong reference to the same object
func (r *Ref[T]) Clone() Ref[T] {
	if r.control != alloc.MemNull {
		retainStrong(r.alloc, r.control)
	}
	return Ref[T]{alloc: r.alloc, control: r.control}
}

// Take moves the reference out of r, leaving r null
func (r *Ref[T]) Take() Ref[T] {
	taken := *r
	*r = Ref[T]{}
	return taken
}

// Release drops r's strong reference and leaves r null. Releasing a null Ref does nothing.
func (r *Ref[T]) Release() {
	if r.control == alloc.MemNull {
		return
	}

	a, control := r.alloc, r.control
	*r = Ref[T]{}
	releaseStrong(a, control)
}

// Assign makes r another strong reference to other's object, releasing what r held before
func (r *Ref[T]) Assign(other Ref[T]) {
	if r.control == other.control && allocatorID(r.alloc) == allocatorID(other.alloc) {
		return
	}

	clone := other.Clone()
	r.Release()
	*r = clone
}

// Weak returns a weak reference to r's object. A null Ref produces a null RefWeak.
func (r *Ref[T]) Weak() RefWeak[T] {
	if r.control != alloc.MemNull {
		retainWeak(r.alloc, r.control)
	}
	return RefWeak[T]{alloc: r.alloc, control: r.control}
}

// NewWeak returns a weak reference to r's object
func NewWeak[T any](r *Ref[T]) RefWeak[T] {
	return r.Weak()
}

// StrongCount returns the number of strong references to r's object
func (r *Ref[T]) StrongCount() int {
	return strongCount(r.alloc, r.control)
}

// WeakCount returns the number of weak references to r's object
func (r *Ref[T]) WeakCount() int {
	return weakCount(r.alloc, r.control)
}

// Equal reports whether r and other refer to the same object. The values of the objects are
// never compared.
func (r *Ref[T]) Equal(other Ref[T]) bool {
	return r.control == other.control && allocatorID(r.alloc) == allocatorID(other.alloc)
}

// SameObject reports whether two references of any static types refer to the same object
func SameObject[T, U any](left *Ref[T], right *Ref[U]) bool {
	return left.control == right.control && allocatorID(left.alloc) == allocatorID(right.alloc)
}

// EqualID compares r with the null handle. Comparing a reference with any other handle panics,
// since a handle never identifies a shared object.
func (r *Ref[T]) EqualID(id alloc.MemID) bool {
	checkNullID(id)
	return r.IsNull()
}

// EqualPointer compares r with a nil pointer. Comparing a reference with any other address
// panics.
func (r *Ref[T]) EqualPointer(p unsafe.Pointer) bool {
	checkNullPointer(p == nil)
	return r.IsNull()
}

// Hash identifies r's object for use as a map key
func (r *Ref[T]) Hash() uint64 {
	return identityHash(r.alloc, r.control)
}
