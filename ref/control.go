// Package ref provides owning handles to objects that live in allocator memory: Unique for single
// ownership, and Ref and RefWeak for shared ownership with strong and weak reference counts.
//
// Every type placed behind these handles must be plain data (see alloc.RegisterType), since
// allocator memory is not scanned by the garbage collector. A handle holds the Allocator on the
// Go side and only handles inside allocator memory.
package ref

import (
	"encoding/binary"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/zeebo/xxh3"
)

// ErrAddressMayMove is returned when a shared reference is made in an allocator that carries
// alloc.TraitAddressMayMove, since reference counts are updated in place from many goroutines
var ErrAddressMayMove error = errors.New("shared references need stable addresses")

// controlBlock is allocated next to every shared object, in the same allocator. The strong
// holders together own one unit of weak, so weak only reaches zero once the last strong and the
// last weak holder are both gone.
type controlBlock struct {
	payload   alloc.MemID
	self      alloc.MemID
	allocator uint64
	typeID    uint32
	strong    int32
	weak      int32
}

func block(a alloc.Allocator, control alloc.MemID) *controlBlock {
	return (*controlBlock)(a.Get(control))
}

func checkSharedAllocator(a alloc.Allocator) error {
	if a.Traits().Has(alloc.TraitAddressMayMove) {
		return cerrors.Wrapf(ErrAddressMayMove, "allocator traits %s", a.Traits())
	}
	return nil
}

// newControl allocates a control block for payload with one strong holder
func newControl(a alloc.Allocator, payload alloc.MemID, typeID uint32) (alloc.MemID, error) {
	control, err := alloc.CreateObj(a, func(cb *controlBlock) {
		cb.payload = payload
		cb.allocator = a.ID()
		cb.typeID = typeID
		cb.strong = 1
		cb.weak = 1
	})
	if err != nil {
		return alloc.MemNull, err
	}

	block(a, control).self = control
	return control, nil
}

func retainStrong(a alloc.Allocator, control alloc.MemID) {
	atomic.AddInt32(&block(a, control).strong, 1)
}

// tryRetainStrong adds a strong holder only while at least one already exists
func tryRetainStrong(a alloc.Allocator, control alloc.MemID) bool {
	cb := block(a, control)
	for {
		strong := atomic.LoadInt32(&cb.strong)
		if strong == 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&cb.strong, strong, strong+1) {
			return true
		}
	}
}

func releaseStrong(a alloc.Allocator, control alloc.MemID) {
	cb := block(a, control)
	if atomic.AddInt32(&cb.strong, -1) != 0 {
		return
	}

	err := alloc.DestroyByType(a, cb.typeID, cb.payload)
	if err != nil {
		panic(cerrors.NewAssertionErrorWithWrappedErrf(err, "destroying payload %d of control block %d", cb.payload, control))
	}
	releaseWeak(a, control)
}

func retainWeak(a alloc.Allocator, control alloc.MemID) {
	atomic.AddInt32(&block(a, control).weak, 1)
}

func releaseWeak(a alloc.Allocator, control alloc.MemID) {
	if atomic.AddInt32(&block(a, control).weak, -1) != 0 {
		return
	}

	err := alloc.DestroyObj[controlBlock](a, control)
	if err != nil {
		panic(cerrors.NewAssertionErrorWithWrappedErrf(err, "destroying control block %d", control))
	}
}

func strongCount(a alloc.Allocator, control alloc.MemID) int {
	if control == alloc.MemNull {
		return 0
	}
	return int(atomic.LoadInt32(&block(a, control).strong))
}

func weakCount(a alloc.Allocator, control alloc.MemID) int {
	if control == alloc.MemNull {
		return 0
	}

	cb := block(a, control)
	weak := atomic.LoadInt32(&cb.weak)
	if atomic.LoadInt32(&cb.strong) > 0 {
		weak--
	}
	return int(weak)
}

func allocatorID(a alloc.Allocator) uint64 {
	if a == nil {
		return 0
	}
	return a.ID()
}

func identityHash(a alloc.Allocator, control alloc.MemID) uint64 {
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], allocatorID(a))
	binary.LittleEndian.PutUint64(key[8:], uint64(control))
	return xxh3.Hash(key[:])
}

func checkAdopt(a alloc.Allocator, id alloc.MemID) {
	if a == nil && id != alloc.MemNull {
		panic(cerrors.AssertionFailedf("handle %d was given without an allocator", id))
	}
}

func checkNullID(id alloc.MemID) {
	if id != alloc.MemNull {
		panic(cerrors.AssertionFailedf("references can only be compared against the null handle, but got %d", id))
	}
}

func checkNullPointer(isNil bool) {
	if !isNil {
		panic(cerrors.AssertionFailedf("references can only be compared against a nil pointer"))
	}
}
