package alloc

//go:generate mockgen -source allocator.go -destination ./mocks/allocator.go -package mocks

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// MemID is an opaque handle to a single live allocation inside one specific Allocator. It is
// meaningless outside the allocator that produced it.
type MemID uint64

// MemNull is the reserved handle value that refers to no allocation. No allocator ever returns it
// for a successful, non-empty allocation.
const MemNull MemID = 0

var (
	// ErrOutOfMemory is returned when a bounded allocator cannot fit a request in its remaining capacity
	ErrOutOfMemory error = errors.New("allocator capacity exhausted")
	// ErrInvalidSize is returned when a negative size is requested
	ErrInvalidSize error = errors.New("allocation size is invalid")
	// ErrUnalignable is returned when an alignment greater than 1 is requested from an allocator
	// that does not carry TraitAlignable, or when an allocator cannot honor a type's alignment
	ErrUnalignable error = errors.New("allocator cannot honor the requested alignment")
	// ErrInvalidHandle is returned when a handle that is not live in the allocator is deallocated
	ErrInvalidHandle error = errors.New("handle does not refer to a live allocation")
	// ErrNotTop is returned when a stack allocator is asked to deallocate anything but its most
	// recent allocation
	ErrNotTop error = errors.New("handle is not the top of the stack")
	// ErrNotPlainData is returned when a type holding Go pointers is placed into allocator memory,
	// which the garbage collector does not scan
	ErrNotPlainData error = errors.New("type contains Go pointers and cannot live in allocator memory")
)

// Allocator is the contract every allocator implementation exposes. Higher layers (Unique, Ref,
// RefWeak) depend only on this interface, so any implementation may back any reference type.
type Allocator interface {
	// Allocate reserves size bytes whose address is a multiple of alignment. An alignment of 0
	// requests the allocator's natural alignment. A size of 0 returns MemNull and a nil error
	// without consuming capacity.
	//
	// A request that cannot fit returns an error wrapping ErrOutOfMemory. An alignment that is not
	// a power of two returns an error wrapping memutils.ErrPowerOfTwo.
	Allocate(size int, alignment uint) (MemID, error)
	// Deallocate releases a live allocation. Deallocating MemNull is a no-op. Deallocating a
	// handle that is not live returns an error wrapping ErrInvalidHandle.
	Deallocate(id MemID) error
	// Get returns the address of an allocation's payload. The address is stable until the handle
	// is deallocated, unless the allocator carries TraitAddressMayMove. Get(MemNull) returns nil.
	Get(id MemID) unsafe.Pointer
	// RemainSize returns the number of bytes that are currently free, including header bytes
	// that would be reclaimed by coalescing. An unbounded allocator returns -1.
	RemainSize() int
	// Clear resets the allocator to empty. Every outstanding handle is invalidated.
	Clear()
	// Traits describes the capabilities of the allocator
	Traits() TraitFlags
	// ID is a process-unique identity for this allocator instance
	ID() uint64
}

// PoolAllocator is an Allocator that manages a single fixed-size backing buffer
type PoolAllocator interface {
	Allocator

	// IsInPool reports whether id refers to a live allocation in this pool
	IsInPool(id MemID) bool
	// MaxDataSize is a monotonic high-water mark of the bytes (payload and header) that have been
	// in use at the same time
	MaxDataSize() int
	// TotalSize is the capacity of the backing buffer in bytes
	TotalSize() int
	// IsEmpty returns true if the pool has no live allocations
	IsEmpty() bool
}

var allocatorIDs atomic.Uint64

// NextAllocatorID issues a new process-unique allocator identity. Implementations call it once
// during construction and return the value from ID.
func NextAllocatorID() uint64 {
	return allocatorIDs.Add(1)
}
