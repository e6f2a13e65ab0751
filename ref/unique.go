package ref

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arena/alloc"
)

// Unique is the only owner of a T in allocator memory. There are no counts: the object is
// destroyed by Reset, or by Assign when a new object replaces it.
//
// Unique is move-only. Copying the struct would give two owners, so ownership is handed over
// with Take or Assign, which leave the source null.
type Unique[T any] struct {
	alloc alloc.Allocator
	id    alloc.MemID
	// typeID is the type the object was created as, which may be a type embedding T
	typeID uint32
}

// MakeUnique creates a T in a and passes it to init
func MakeUnique[T any](a alloc.Allocator, init func(obj *T)) (Unique[T], error) {
	typeID, err := alloc.RegisterType[T]()
	if err != nil {
		return Unique[T]{}, err
	}

	id, err := alloc.CreateObj(a, init)
	if err != nil {
		return Unique[T]{}, err
	}

	return Unique[T]{alloc: a, id: id, typeID: typeID}, nil
}

// NewUnique takes ownership of a T that was created in a with alloc.CreateObj. A non-null id
// without an allocator panics.
func NewUnique[T any](a alloc.Allocator, id alloc.MemID) Unique[T] {
	checkAdopt(a, id)
	if id == alloc.MemNull {
		return Unique[T]{}
	}

	typeID, err := alloc.RegisterType[T]()
	if err != nil {
		panic(cerrors.NewAssertionErrorWithWrappedErrf(err, "adopting handle %d", id))
	}

	return Unique[T]{alloc: a, id: id, typeID: typeID}
}

func (u *Unique[T]) IsNull() bool {
	return u.id == alloc.MemNull
}

// ID returns the handle of the owned object
func (u *Unique[T]) ID() alloc.MemID {
	return u.id
}

func (u *Unique[T]) Allocator() alloc.Allocator {
	return u.alloc
}

// Get returns the owned object, or nil for a null Unique
func (u *Unique[T]) Get() *T {
	if u.id == alloc.MemNull {
		return nil
	}
	return (*T)(u.alloc.Get(u.id))
}

// Reset destroys the owned object and leaves u null. Resetting a null Unique does nothing.
func (u *Unique[T]) Reset() {
	if u.id == alloc.MemNull {
		return
	}

	a, id, typeID := u.alloc, u.id, u.typeID
	*u = Unique[T]{}

	err := alloc.DestroyByType(a, typeID, id)
	if err != nil {
		panic(cerrors.NewAssertionErrorWithWrappedErrf(err, "destroying unique object %d", id))
	}
}

// Take moves ownership out of u, leaving u null
func (u *Unique[T]) Take() Unique[T] {
	taken := *u
	*u = Unique[T]{}
	return taken
}

// Assign destroys u's object and moves other's object into u, leaving other null
func (u *Unique[T]) Assign(other *Unique[T]) {
	if u == other {
		return
	}

	taken := other.Take()
	u.Reset()
	*u = taken
}

// EqualID compares u with the null handle. Comparing with any other handle panics.
func (u *Unique[T]) EqualID(id alloc.MemID) bool {
	checkNullID(id)
	return u.IsNull()
}

// EqualPointer compares u with a nil pointer. Comparing with any other address panics.
func (u *Unique[T]) EqualPointer(p unsafe.Pointer) bool {
	checkNullPointer(p == nil)
	return u.IsNull()
}
