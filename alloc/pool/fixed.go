package pool

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/internal/utils"
	"github.com/vkngwrapper/arena/memutils"
	"golang.org/x/exp/slog"
)

// FixedSizePool hands out equal-size slots from a single buffer and keeps live slots packed at
// the front. Deallocating a slot moves the last live slot into the hole, so handles stay valid but
// addresses move: a pointer from Get is only good until the next Deallocate. Live objects can be
// iterated densely with Len and At.
type FixedSizePool struct {
	logger *slog.Logger
	id     uint64
	mutex  utils.OptionalRWMutex

	elementSize int
	maxElements int
	alignment   uint
	buffer      []byte
	// data is the first aligned byte of buffer
	data unsafe.Pointer

	count        int
	maxCount     int
	nextHandle   alloc.MemID
	slotByHandle *swiss.Map[alloc.MemID, int]
	handleBySlot []alloc.MemID
}

var _ alloc.PoolAllocator = &FixedSizePool{}

// NewFixedSizePool creates a FixedSizePool with options.MaxElements slots of options.ElementSize bytes
func NewFixedSizePool(logger *slog.Logger, options FixedSizeCreateOptions) (*FixedSizePool, error) {
	if options.ElementSize <= 0 || options.MaxElements <= 0 {
		return nil, cerrors.Newf("fixed size pool needs a positive element size and count, but got %d x %d", options.ElementSize, options.MaxElements)
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = minAlignment
	}
	err := memutils.CheckPow2(alignment, "options.Alignment")
	if err != nil {
		return nil, err
	}

	elementSize := memutils.AlignUp(options.ElementSize, alignment)
	buffer := make([]byte, elementSize*options.MaxElements+int(alignment)-1)
	start := uintptr(unsafe.Pointer(&buffer[0]))
	padding := int(memutils.AlignAddress(start, alignment) - start)

	p := &FixedSizePool{
		logger:       orDiscard(logger),
		id:           alloc.NextAllocatorID(),
		elementSize:  elementSize,
		maxElements:  options.MaxElements,
		alignment:    alignment,
		buffer:       buffer,
		data:         unsafe.Pointer(&buffer[padding]),
		nextHandle:   1,
		slotByHandle: swiss.NewMap[alloc.MemID, int](uint32(options.MaxElements)),
		handleBySlot: make([]alloc.MemID, options.MaxElements),
	}
	p.mutex.UseMutex = options.Flags.synchronized()

	return p, nil
}

func (p *FixedSizePool) slot(index int) unsafe.Pointer {
	return unsafe.Add(p.data, index*p.elementSize)
}

func (p *FixedSizePool) slotBytes(index int) []byte {
	return unsafe.Slice((*byte)(p.slot(index)), p.elementSize)
}

func (p *FixedSizePool) ID() uint64 {
	return p.id
}

func (p *FixedSizePool) Traits() alloc.TraitFlags {
	traits := alloc.TraitPool | alloc.TraitAlignable | alloc.TraitContiguous | alloc.TraitLimitedSize |
		alloc.TraitFixedSize | alloc.TraitAddressMayMove
	if p.mutex.Synchronized() {
		traits |= alloc.TraitConcurrent
	}
	return traits
}

// ElementSize is the size in bytes of every slot
func (p *FixedSizePool) ElementSize() int {
	return p.elementSize
}

func (p *FixedSizePool) Allocate(size int, alignment uint) (alloc.MemID, error) {
	p.logger.Debug("FixedSizePool::Allocate", slog.Int("Size", size))

	if size < 0 || size > p.elementSize {
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrInvalidSize, "size %d does not fit in elements of %d bytes", size, p.elementSize)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return alloc.MemNull, err
	}
	if alignment > p.alignment {
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrUnalignable, "pool aligns to %d, but %d was requested", p.alignment, alignment)
	}
	if size == 0 {
		return alloc.MemNull, nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.count >= p.maxElements {
		p.logger.Debug("    FixedSizePool::Allocate FAILED", slog.Int("Count", p.count))
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrOutOfMemory, "all %d elements are in use", p.maxElements)
	}

	handle := p.nextHandle
	p.nextHandle++

	index := p.count
	p.count++
	if p.count > p.maxCount {
		p.maxCount = p.count
	}

	p.handleBySlot[index] = handle
	p.slotByHandle.Put(handle, index)

	return handle, nil
}

func (p *FixedSizePool) Deallocate(id alloc.MemID) error {
	p.logger.Debug("FixedSizePool::Deallocate")

	if id == alloc.MemNull {
		return nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	index, ok := p.slotByHandle.Get(id)
	if !ok {
		return cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not live", id)
	}
	p.slotByHandle.Delete(id)

	last := p.count - 1
	if index != last {
		copy(p.slotBytes(index), p.slotBytes(last))
		moved := p.handleBySlot[last]
		p.handleBySlot[index] = moved
		p.slotByHandle.Put(moved, index)
	}

	clear(p.slotBytes(last))
	p.handleBySlot[last] = alloc.MemNull
	p.count--

	return nil
}

// Get returns the current address of a live element. The address changes when another element
// is deallocated.
func (p *FixedSizePool) Get(id alloc.MemID) unsafe.Pointer {
	if id == alloc.MemNull {
		return nil
	}

	p.mutex.RLock()
	defer p.mutex.RUnlock()

	index, ok := p.slotByHandle.Get(id)
	if !ok {
		return nil
	}
	return p.slot(index)
}

// Len returns the number of live elements
func (p *FixedSizePool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.count
}

// Cap returns the number of slots in the pool
func (p *FixedSizePool) Cap() int {
	return p.maxElements
}

// At returns the address of the index'th live element in slot order. It panics if index is
// not in [0, Len()).
func (p *FixedSizePool) At(index int) unsafe.Pointer {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if index < 0 || index >= p.count {
		panic(cerrors.AssertionFailedf("index %d out of range [0, %d)", index, p.count))
	}
	return p.slot(index)
}

// HandleAt returns the handle of the index'th live element in slot order. It panics if index is
// not in [0, Len()).
func (p *FixedSizePool) HandleAt(index int) alloc.MemID {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if index < 0 || index >= p.count {
		panic(cerrors.AssertionFailedf("index %d out of range [0, %d)", index, p.count))
	}
	return p.handleBySlot[index]
}

func (p *FixedSizePool) IsInPool(id alloc.MemID) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.slotByHandle.Has(id)
}

func (p *FixedSizePool) RemainSize() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return (p.maxElements - p.count) * p.elementSize
}

func (p *FixedSizePool) MaxDataSize() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.maxCount * p.elementSize
}

func (p *FixedSizePool) TotalSize() int {
	return p.maxElements * p.elementSize
}

func (p *FixedSizePool) IsEmpty() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.count == 0
}

func (p *FixedSizePool) Clear() {
	p.logger.Debug("FixedSizePool::Clear")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.slotByHandle.Clear()
	clear(p.handleBySlot)
	clear(p.buffer)
	p.count = 0
}

// Close releases the backing buffer, warning if elements are still live
func (p *FixedSizePool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.count > 0 {
		p.logger.Warn("FixedSizePool::Close called with live allocations",
			slog.Int("AllocationCount", p.count),
			slog.Int("UsedBytes", p.count*p.elementSize),
		)
	}

	p.slotByHandle.Clear()
	p.handleBySlot = nil
	p.buffer = nil
	p.data = nil
	p.count = 0
	p.maxElements = 0
}

func (p *FixedSizePool) WriteJSON(writer *jwriter.Writer) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("type").String("FixedSizePool")
	obj.Name("total_size").Int(p.maxElements * p.elementSize)
	obj.Name("element_size").Int(p.elementSize)
	obj.Name("used").Int(p.count)
}

func (p *FixedSizePool) String() string {
	writer := jwriter.NewWriter()
	p.WriteJSON(&writer)
	return string(writer.Bytes())
}

func (p *FixedSizePool) Validate() error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.slotByHandle.Count() != p.count {
		return cerrors.Wrapf(memutils.ErrCorrupted, "%d handles mapped but %d elements live", p.slotByHandle.Count(), p.count)
	}

	for index := 0; index < p.count; index++ {
		mapped, ok := p.slotByHandle.Get(p.handleBySlot[index])
		if !ok || mapped != index {
			return cerrors.Wrapf(memutils.ErrCorrupted, "slot %d holds handle %d, which maps elsewhere", index, p.handleBySlot[index])
		}
	}

	return nil
}
