package pool

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/internal/utils"
	"github.com/vkngwrapper/arena/memutils"
	"golang.org/x/exp/slog"
)

// stackHeaderSize is the size of the frame record in front of every stack allocation: the stack
// pointer and top handle from before the allocation was made
const stackHeaderSize int = 2 * WordSize

// StackMark is a saved stack position that can be restored with Rewind
type StackMark struct {
	stackPointer int
	top          alloc.MemID
	count        int
	// serial of the top frame when the mark was taken, 0 for an empty stack
	serial uint64
}

// StackAllocator is a bump allocator over a fixed buffer. Allocations are released in LIFO order,
// either one at a time with Pop or Deallocate, or all at once by rewinding to a StackMark. Every
// allocation is preceded by a frame record so the previous position can be restored.
type StackAllocator struct {
	logger *slog.Logger
	id     uint64
	mutex  utils.OptionalMutex

	words []uint64
	size  int
	base  uintptr

	stackPointer    int
	top             alloc.MemID
	allocationCount int
	maxDataSize     int

	// frameSerials[i] identifies the frame currently at depth i. A frame that is popped and
	// replaced gets a new serial, which invalidates marks taken above the old one.
	frameSerials []uint64
	nextSerial   uint64
}

var _ alloc.PoolAllocator = &StackAllocator{}

// NewStackAllocator creates a StackAllocator with a backing buffer of options.Capacity bytes. The
// capacity must be a multiple of WordSize.
func NewStackAllocator(logger *slog.Logger, options CreateOptions) (*StackAllocator, error) {
	err := checkAlignedCapacity(options.Capacity)
	if err != nil {
		return nil, err
	}

	words := make([]uint64, options.Capacity/WordSize)
	s := &StackAllocator{
		logger: orDiscard(logger),
		id:     alloc.NextAllocatorID(),
		words:  words,
		size:   options.Capacity,
		base:   uintptr(unsafe.Pointer(&words[0])),
	}
	s.mutex.UseMutex = options.Flags.synchronized()

	return s, nil
}

func (s *StackAllocator) ID() uint64 {
	return s.id
}

func (s *StackAllocator) Traits() alloc.TraitFlags {
	traits := alloc.TraitPool | alloc.TraitAlignable | alloc.TraitContiguous | alloc.TraitLimitedSize
	if s.mutex.Synchronized() {
		traits |= alloc.TraitConcurrent
	}
	return traits
}

func (s *StackAllocator) Allocate(size int, alignment uint) (alloc.MemID, error) {
	s.logger.Debug("StackAllocator::Allocate", slog.Int("Size", size), slog.Int("Alignment", int(alignment)))

	size, alignment, err := checkAlignedRequest(size, alignment)
	if err != nil {
		return alloc.MemNull, err
	}
	if size == 0 {
		return alloc.MemNull, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	headerAddress := s.base + uintptr(s.stackPointer+stackHeaderSize)
	payload := s.stackPointer + stackHeaderSize + int(memutils.AlignAddress(headerAddress, alignment)-headerAddress)
	end := payload + size
	if end > s.size {
		s.logger.Debug("    StackAllocator::Allocate FAILED", slog.Int("Size", size), slog.Int("Available", s.size-s.stackPointer))
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrOutOfMemory, "could not fit %d bytes aligned to %d in stack of %d with %d bytes available", size, alignment, s.size, s.size-s.stackPointer)
	}

	s.words[(payload-stackHeaderSize)/WordSize] = uint64(s.stackPointer)
	s.words[(payload-WordSize)/WordSize] = uint64(s.top)

	s.nextSerial++
	s.frameSerials = append(s.frameSerials[:s.allocationCount], s.nextSerial)

	s.stackPointer = end
	s.top = alloc.MemID(payload)
	s.allocationCount++
	if s.stackPointer > s.maxDataSize {
		s.maxDataSize = s.stackPointer
	}

	return s.top, nil
}

func (s *StackAllocator) popTop() {
	s.stackPointer = int(s.words[(int(s.top)-stackHeaderSize)/WordSize])
	s.top = alloc.MemID(s.words[(int(s.top)-WordSize)/WordSize])
	s.allocationCount--
}

// Deallocate releases the most recent allocation. Any other live handle returns an error
// wrapping alloc.ErrNotTop.
func (s *StackAllocator) Deallocate(id alloc.MemID) error {
	s.logger.Debug("StackAllocator::Deallocate")

	if id == alloc.MemNull {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if id != s.top {
		if s.isLive(id) {
			return cerrors.Wrapf(alloc.ErrNotTop, "handle %d is below the top %d", id, s.top)
		}
		return cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not live", id)
	}

	s.popTop()
	return nil
}

// Pop releases the most recent allocation. Popping an empty stack is a no-op.
func (s *StackAllocator) Pop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.top != alloc.MemNull {
		s.popTop()
	}
}

// Mark records the current stack position
func (s *StackAllocator) Mark() StackMark {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return StackMark{
		stackPointer: s.stackPointer,
		top:          s.top,
		count:        s.allocationCount,
		serial:       s.topSerial(s.allocationCount),
	}
}

func (s *StackAllocator) topSerial(count int) uint64 {
	if count == 0 {
		return 0
	}
	return s.frameSerials[count-1]
}

// Rewind releases every allocation made after mark was taken. Rewinding to a mark that is above
// the current stack position, or whose top allocation has since been released, returns an error.
func (s *StackAllocator) Rewind(mark StackMark) error {
	s.logger.Debug("StackAllocator::Rewind", slog.Int("StackPointer", mark.stackPointer))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if mark.stackPointer > s.stackPointer || mark.count > s.allocationCount {
		return cerrors.Newf("cannot rewind to %d from %d", mark.stackPointer, s.stackPointer)
	}
	if s.topSerial(mark.count) != mark.serial {
		return cerrors.Newf("cannot rewind to %d: the allocation at handle %d was released after the mark was taken", mark.stackPointer, mark.top)
	}

	s.stackPointer = mark.stackPointer
	s.top = mark.top
	s.allocationCount = mark.count
	return nil
}

func (s *StackAllocator) isLive(id alloc.MemID) bool {
	for current := s.top; current != alloc.MemNull; current = alloc.MemID(s.words[(int(current)-WordSize)/WordSize]) {
		if current == id {
			return true
		}
		if current < id {
			return false
		}
	}
	return false
}

func (s *StackAllocator) Get(id alloc.MemID) unsafe.Pointer {
	if id == alloc.MemNull {
		return nil
	}
	return unsafe.Add(unsafe.Pointer(&s.words[0]), int(id))
}

func (s *StackAllocator) IsInPool(id alloc.MemID) bool {
	if id == alloc.MemNull {
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.isLive(id)
}

func (s *StackAllocator) RemainSize() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.size - s.stackPointer
}

// StackPointer returns the offset of the first unused byte
func (s *StackAllocator) StackPointer() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.stackPointer
}

func (s *StackAllocator) MaxDataSize() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.maxDataSize
}

func (s *StackAllocator) TotalSize() int {
	return s.size
}

func (s *StackAllocator) IsEmpty() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.allocationCount == 0
}

func (s *StackAllocator) Clear() {
	s.logger.Debug("StackAllocator::Clear")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stackPointer = 0
	s.top = alloc.MemNull
	s.allocationCount = 0
}

// Close releases the backing buffer, warning if allocations are still live
func (s *StackAllocator) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.allocationCount > 0 {
		s.logger.Warn("StackAllocator::Close called with live allocations",
			slog.Int("AllocationCount", s.allocationCount),
			slog.Int("StackPointer", s.stackPointer),
		)
	}

	s.words = nil
	s.frameSerials = nil
	s.size = 0
	s.stackPointer = 0
	s.top = alloc.MemNull
	s.allocationCount = 0
}

func (s *StackAllocator) WriteJSON(writer *jwriter.Writer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("type").String("StackAllocator")
	obj.Name("total_size").Int(s.size)
	obj.Name("stack_pointer").Int(s.stackPointer)
	obj.Name("available").Int(s.size - s.stackPointer)
}

func (s *StackAllocator) String() string {
	writer := jwriter.NewWriter()
	s.WriteJSON(&writer)
	return string(writer.Bytes())
}
