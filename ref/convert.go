package ref

import (
	"reflect"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arena/alloc"
)

type typePair struct {
	base    reflect.Type
	derived reflect.Type
}

var upcasts = struct {
	lock    sync.RWMutex
	checked *swiss.Map[typePair, bool]
}{
	checked: swiss.NewMap[typePair, bool](16),
}

// embedsAtZero reports whether outer is inner, or starts with inner through a chain of embedded
// first fields, so that a pointer to outer is also a valid pointer to inner
func embedsAtZero(outer, inner reflect.Type) bool {
	for {
		if outer == inner {
			return true
		}
		if outer.Kind() != reflect.Struct || outer.NumField() == 0 {
			return false
		}

		field := outer.Field(0)
		if !field.Anonymous || field.Offset != 0 {
			return false
		}
		outer = field.Type
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// checkUpcast panics unless every D is also a valid B
func checkUpcast[B, D any]() {
	pair := typePair{base: typeOf[B](), derived: typeOf[D]()}

	upcasts.lock.RLock()
	ok, seen := upcasts.checked.Get(pair)
	upcasts.lock.RUnlock()

	if !seen {
		ok = embedsAtZero(pair.derived, pair.base)

		upcasts.lock.Lock()
		upcasts.checked.Put(pair, ok)
		upcasts.lock.Unlock()
	}

	if !ok {
		panic(cerrors.AssertionFailedf("%s does not begin with an embedded %s", pair.derived, pair.base))
	}
}

// Upcast moves a reference to a D into a reference to its embedded base B. D must be B, or
// embed B as its first field, possibly through other embedded first fields; any other pair
// panics. The object is not inspected and no count changes.
func Upcast[B, D any](r *Ref[D]) Ref[B] {
	checkUpcast[B, D]()

	taken := r.Take()
	return Ref[B]{alloc: taken.alloc, control: taken.control}
}

// UpcastWeak is Upcast for weak references
func UpcastWeak[B, D any](w *RefWeak[D]) RefWeak[B] {
	checkUpcast[B, D]()

	taken := w.Take()
	return RefWeak[B]{alloc: taken.alloc, control: taken.control}
}

// UpcastUnique is Upcast for unique handles. The object keeps its type, so Reset still runs
// D's destructor.
func UpcastUnique[B, D any](u *Unique[D]) Unique[B] {
	checkUpcast[B, D]()

	taken := u.Take()
	return Unique[B]{alloc: taken.alloc, id: taken.id, typeID: taken.typeID}
}

// Downcast returns a new strong reference to r's object as a D, when the object was created as
// a D or as a type that begins with an embedded D. Otherwise it returns a null Ref and changes
// nothing.
func Downcast[D, B any](r *Ref[B]) Ref[D] {
	if r.IsNull() {
		return Ref[D]{}
	}

	live := alloc.TypeByID(block(r.alloc, r.control).typeID)
	if live == nil || !embedsAtZero(live, typeOf[D]()) {
		return Ref[D]{}
	}

	retainStrong(r.alloc, r.control)
	return Ref[D]{alloc: r.alloc, control: r.control}
}
