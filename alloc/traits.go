package alloc

import "github.com/vkngwrapper/arena/internal/utils"

// TraitFlags describe what an allocator is capable of. They never change the behavior of an
// allocator, and consumers use them to decide whether a given allocator is suitable.
type TraitFlags uint32

var traitFlagsMapping = utils.NewFlagStringMapping[TraitFlags]()

func (f TraitFlags) Register(str string) {
	traitFlagsMapping.Register(f, str)
}
func (f TraitFlags) String() string {
	return traitFlagsMapping.FlagsToString(f)
}

// Has returns true if every flag in other is also set in f
func (f TraitFlags) Has(other TraitFlags) bool {
	return f&other == other
}

const (
	// TraitPool indicates the allocator carves allocations out of a fixed backing buffer
	TraitPool TraitFlags = 1 << iota
	// TraitAlignable indicates that alignments greater than 1 are honored
	TraitAlignable
	// TraitContiguous indicates every allocation is a single contiguous address range
	TraitContiguous
	// TraitLimitedSize indicates total capacity is bounded and Allocate can fail with ErrOutOfMemory
	TraitLimitedSize
	// TraitFixedSize indicates every allocation must be the same size
	TraitFixedSize
	// TraitConcurrent indicates Allocate and Deallocate may be called from multiple goroutines
	// without external locking
	TraitConcurrent
	// TraitAddressMayMove indicates that deallocating one handle may move the payload of another.
	// Addresses returned by Get are only stable until the next Deallocate.
	TraitAddressMayMove
)

func init() {
	TraitPool.Register("Pool")
	TraitAlignable.Register("Alignable")
	TraitContiguous.Register("Contiguous")
	TraitLimitedSize.Register("LimitedSize")
	TraitFixedSize.Register("FixedSize")
	TraitConcurrent.Register("Concurrent")
	TraitAddressMayMove.Register("AddressMayMove")
}
