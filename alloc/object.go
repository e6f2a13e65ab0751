package alloc

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// Destructor is implemented by types that need to release resources (usually other handles in the
// same allocator) before their memory is returned. DestroyObj calls Destruct exactly once.
type Destructor interface {
	Destruct()
}

// CreateObj allocates memory for a T aligned to T's alignment, zeroes it, and hands it to init
// for construction. init may be nil. T must be plain data: see RegisterType.
func CreateObj[T any](a Allocator, init func(obj *T)) (MemID, error) {
	_, err := RegisterType[T]()
	if err != nil {
		return MemNull, err
	}

	size, align := objLayout[T]()
	if align > 1 && !a.Traits().Has(TraitAlignable) {
		var zero T
		return MemNull, cerrors.Wrapf(ErrUnalignable, "%T requires alignment %d", zero, align)
	}

	id, err := a.Allocate(size, align)
	if err != nil {
		return MemNull, err
	}

	obj := (*T)(a.Get(id))
	var zero T
	*obj = zero
	if init != nil {
		init(obj)
	}

	return id, nil
}

// DestroyObj runs T's Destructor, if any, and deallocates the object. Destroying MemNull is a no-op.
func DestroyObj[T any](a Allocator, id MemID) error {
	if id == MemNull {
		return nil
	}

	obj := (*T)(a.Get(id))
	destructor, isDestructor := any(obj).(Destructor)
	if isDestructor {
		destructor.Destruct()
	}

	var zero T
	*obj = zero
	return a.Deallocate(id)
}

// DestroyByType destroys an object whose static type is unknown to the caller, using the type id
// returned from RegisterType when the object was created. This lets a handle to an embedded
// base type destroy the full object it was converted from.
func DestroyByType(a Allocator, typeID uint32, id MemID) error {
	if id == MemNull {
		return nil
	}

	info := lookupType(typeID)
	if info == nil {
		return cerrors.AssertionFailedf("unknown type id %d", typeID)
	}

	ptr := a.Get(id)
	info.destruct(ptr)

	if info.size > 0 {
		clear(unsafe.Slice((*byte)(ptr), info.size))
	}
	return a.Deallocate(id)
}

// GetObj returns the object stored at id, or nil for MemNull
func GetObj[T any](a Allocator, id MemID) *T {
	if id == MemNull {
		return nil
	}
	return (*T)(a.Get(id))
}

func objLayout[T any]() (int, uint) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		// Every object gets a distinct handle, even ones that take no space
		size = 1
	}
	return size, uint(unsafe.Alignof(zero))
}
