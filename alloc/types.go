package alloc

import (
	"reflect"
	"sync"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// NoType is the type id that is never assigned to a registered type
const NoType uint32 = 0

type typeInfo struct {
	id    uint32
	typ   reflect.Type
	size  uintptr
	align uintptr
	// destruct runs the type's Destructor, if it has one, against an object in allocator memory
	destruct func(ptr unsafe.Pointer)
}

type typeRegistry struct {
	lock   sync.RWMutex
	byType *swiss.Map[reflect.Type, uint32]
	// infos is indexed by type id. Index 0 is NoType and is always nil
	infos []*typeInfo
}

var types = typeRegistry{
	byType: swiss.NewMap[reflect.Type, uint32](42),
	infos:  []*typeInfo{nil},
}

// RegisterType returns the type id for T, registering T on first use. Types that hold Go pointers
// are rejected with an error wrapping ErrNotPlainData, since allocator memory is not scanned by
// the garbage collector.
func RegisterType[T any]() (uint32, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	types.lock.RLock()
	id, ok := types.byType.Get(typ)
	types.lock.RUnlock()
	if ok {
		return id, nil
	}

	err := checkPlainData(typ, typ)
	if err != nil {
		return NoType, err
	}

	types.lock.Lock()
	defer types.lock.Unlock()

	// Another goroutine may have registered it between the two locks
	id, ok = types.byType.Get(typ)
	if ok {
		return id, nil
	}

	id = uint32(len(types.infos))
	types.infos = append(types.infos, &typeInfo{
		id:    id,
		typ:   typ,
		size:  typ.Size(),
		align: uintptr(typ.Align()),
		destruct: func(ptr unsafe.Pointer) {
			destructor, isDestructor := any((*T)(ptr)).(Destructor)
			if isDestructor {
				destructor.Destruct()
			}
		},
	})
	types.byType.Put(typ, id)

	return id, nil
}

// TypeByID returns the reflect.Type registered under a type id, or nil if the id is unknown
func TypeByID(id uint32) reflect.Type {
	info := lookupType(id)
	if info == nil {
		return nil
	}
	return info.typ
}

func lookupType(id uint32) *typeInfo {
	types.lock.RLock()
	defer types.lock.RUnlock()

	if int(id) >= len(types.infos) {
		return nil
	}
	return types.infos[id]
}

func checkPlainData(root, typ reflect.Type) error {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		if typ.Len() == 0 {
			return nil
		}
		return checkPlainData(root, typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			err := checkPlainData(root, typ.Field(i).Type)
			if err != nil {
				return err
			}
		}
		return nil
	}

	return cerrors.Wrapf(ErrNotPlainData, "%s holds a %s", root, typ.Kind())
}
