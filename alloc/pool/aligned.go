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

const (
	// WordSize is the size of a chunk header in the aligned pools, and the granularity that every
	// chunk extent is rounded to
	WordSize int = 8

	extentMask uint64 = 1<<48 - 1
	// paddedBit marks a used chunk whose payload does not directly follow its header. The word
	// after the header then holds the padding length.
	paddedBit    uint64 = 1 << 59
	freeBit      uint64 = 1 << 60
	lockBit      uint64 = 1 << 61
	paddingBit   uint64 = 1 << 62
	minAlignment uint   = uint(WordSize)
)

// chunkPlacement describes where a payload lands inside a free chunk
type chunkPlacement struct {
	padding int
	needed  int
}

// placeInChunk finds the payload position for a request inside the chunk at offset. base is
// the absolute address of the buffer, so alignment is honored for the real address rather than
// the offset.
func placeInChunk(base uintptr, offset int, size int, alignment uint) chunkPlacement {
	payload := base + uintptr(offset+WordSize)
	padding := int(memutils.AlignAddress(payload, alignment) - payload)

	return chunkPlacement{
		padding: padding,
		needed:  WordSize + padding + size,
	}
}

// checkAlignedRequest normalizes size and alignment for the aligned pools. It returns a size of
// 0 for requests that should produce MemNull.
func checkAlignedRequest(size int, alignment uint) (int, uint, error) {
	if size < 0 {
		return 0, 0, cerrors.Wrapf(alloc.ErrInvalidSize, "size is %d", size)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return 0, 0, err
	}

	if alignment < minAlignment {
		alignment = minAlignment
	}
	return memutils.AlignUp(size, uint(WordSize)), alignment, nil
}

func checkAlignedCapacity(capacity int) error {
	if capacity < 2*WordSize || capacity%WordSize != 0 || uint64(capacity) > extentMask {
		return cerrors.Newf("aligned pool capacity must be a multiple of %d between %d and %d, but was %d", WordSize, 2*WordSize, extentMask, capacity)
	}
	return nil
}

// AlignedPool is a fixed-capacity allocator that honors any power-of-two alignment. Every chunk
// starts with an 8-byte header holding its extent and a free flag. When alignment pushes the
// payload away from the header, the word directly in front of the payload records the padding
// length, so deallocation can find the chunk start from the handle alone. Requested sizes are
// rounded up to the word size.
//
// Allocation is first-fit and freed chunks are merged with free neighbors immediately.
//
// AlignedPool is not safe for concurrent use unless it was created with
// CreateInternallySynchronized. See ConcurrentPool for a variant without a pool-wide lock.
type AlignedPool struct {
	logger *slog.Logger
	id     uint64
	mutex  utils.OptionalMutex

	words []uint64
	size  int
	base  uintptr

	freeBytes       int
	usedBytes       int
	maxDataSize     int
	allocationCount int
}

var _ alloc.PoolAllocator = &AlignedPool{}

// NewAlignedPool creates an AlignedPool with a backing buffer of options.Capacity bytes. The
// capacity must be a multiple of WordSize.
func NewAlignedPool(logger *slog.Logger, options CreateOptions) (*AlignedPool, error) {
	err := checkAlignedCapacity(options.Capacity)
	if err != nil {
		return nil, err
	}

	words := make([]uint64, options.Capacity/WordSize)
	p := &AlignedPool{
		logger: orDiscard(logger),
		id:     alloc.NextAllocatorID(),
		words:  words,
		size:   options.Capacity,
		base:   uintptr(unsafe.Pointer(&words[0])),
	}
	p.mutex.UseMutex = options.Flags.synchronized()
	p.reset()

	return p, nil
}

func (p *AlignedPool) reset() {
	p.words[0] = freeBit | uint64(p.size)
	p.freeBytes = p.size
	p.usedBytes = 0
	p.allocationCount = 0
}

func (p *AlignedPool) word(offset int) *uint64 {
	return &p.words[offset/WordSize]
}

func (p *AlignedPool) ID() uint64 {
	return p.id
}

func (p *AlignedPool) Traits() alloc.TraitFlags {
	traits := alloc.TraitPool | alloc.TraitAlignable | alloc.TraitContiguous | alloc.TraitLimitedSize
	if p.mutex.Synchronized() {
		traits |= alloc.TraitConcurrent
	}
	return traits
}

func (p *AlignedPool) Allocate(size int, alignment uint) (alloc.MemID, error) {
	p.logger.Debug("AlignedPool::Allocate", slog.Int("Size", size), slog.Int("Alignment", int(alignment)))

	size, alignment, err := checkAlignedRequest(size, alignment)
	if err != nil {
		return alloc.MemNull, err
	}
	if size == 0 {
		return alloc.MemNull, nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for offset := 0; offset < p.size; {
		header := *p.word(offset)
		extent := int(header & extentMask)

		if header&freeBit != 0 {
			placement := placeInChunk(p.base, offset, size, alignment)
			if placement.needed <= extent {
				return p.claim(offset, extent, placement), nil
			}
		}

		offset += extent
	}

	p.logger.Debug("    AlignedPool::Allocate FAILED", slog.Int("Size", size), slog.Int("Remaining", p.freeBytes))
	return alloc.MemNull, cerrors.Wrapf(alloc.ErrOutOfMemory, "could not fit %d bytes aligned to %d in pool of %d with %d bytes free", size, alignment, p.size, p.freeBytes)
}

func (p *AlignedPool) claim(offset, extent int, placement chunkPlacement) alloc.MemID {
	if extent-placement.needed >= WordSize {
		*p.word(offset + placement.needed) = freeBit | uint64(extent-placement.needed)
		extent = placement.needed
	}

	*p.word(offset) = paddedHeader(extent, placement.padding)
	if placement.padding > 0 {
		*p.word(offset + WordSize) = paddingBit | uint64(placement.padding)
		*p.word(offset + placement.padding) = paddingBit | uint64(placement.padding)
	}

	p.freeBytes -= extent
	p.usedBytes += extent
	p.allocationCount++
	if p.usedBytes > p.maxDataSize {
		p.maxDataSize = p.usedBytes
	}

	memutils.DebugValidate(validateFunc(p.validate))
	return alloc.MemID(offset + WordSize + placement.padding)
}

func paddedHeader(extent, padding int) uint64 {
	if padding > 0 {
		return paddedBit | uint64(extent)
	}
	return uint64(extent)
}

// payloadOffset returns where the payload of the used chunk at offset begins, reading only words
// that belong to the pool
func (p *AlignedPool) payloadOffset(offset int, header uint64) int {
	if header&paddedBit == 0 {
		return offset + WordSize
	}
	return offset + WordSize + int(*p.word(offset + WordSize)&extentMask)
}

// chunkStart recovers the chunk offset from a payload handle using the padding marker. The result
// is only meaningful for live handles, and must be confirmed against the chunk list.
func chunkStart(id alloc.MemID, marker uint64) int {
	start := int(id) - WordSize
	if marker&paddingBit != 0 {
		start -= int(marker & extentMask)
	}
	return start
}

func validHandleShape(id alloc.MemID, size int) bool {
	return int(id) >= WordSize && int(id) < size && int(id)%WordSize == 0
}

// findChunk walks the chunk list looking for the chunk that starts at offset. It returns the
// offset of the chunk before it, or -1 if it is the first chunk.
func (p *AlignedPool) findChunk(offset int) (previous int, found bool) {
	previous = -1
	current := 0
	for current < p.size && current < offset {
		previous = current
		current += int(*p.word(current) & extentMask)
	}

	return previous, current == offset && current < p.size
}

// liveChunk resolves a handle to the chunk that owns it, verifying that the chunk is in use
func (p *AlignedPool) liveChunk(id alloc.MemID) (start, previous int, err error) {
	if !validHandleShape(id, p.size) {
		return 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is outside the pool", id)
	}

	start = chunkStart(id, *p.word(int(id) - WordSize))
	if start < 0 {
		return 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not the start of a chunk", id)
	}

	previous, found := p.findChunk(start)
	if !found {
		return 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not the start of a chunk", id)
	}

	header := *p.word(start)
	if header&freeBit != 0 || int(id) != p.payloadOffset(start, header) {
		return 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not a live allocation", id)
	}

	return start, previous, nil
}

func (p *AlignedPool) Deallocate(id alloc.MemID) error {
	p.logger.Debug("AlignedPool::Deallocate")

	if id == alloc.MemNull {
		return nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	start, previous, err := p.liveChunk(id)
	if err != nil {
		return err
	}

	extent := int(*p.word(start) & extentMask)
	p.freeBytes += extent
	p.usedBytes -= extent
	p.allocationCount--

	next := start + extent
	if next < p.size {
		nextHeader := *p.word(next)
		if nextHeader&freeBit != 0 {
			extent += int(nextHeader & extentMask)
		}
	}

	if previous >= 0 {
		previousHeader := *p.word(previous)
		if previousHeader&freeBit != 0 {
			start = previous
			extent += int(previousHeader & extentMask)
		}
	}

	*p.word(start) = freeBit | uint64(extent)

	memutils.DebugValidate(validateFunc(p.validate))
	return nil
}

func (p *AlignedPool) Get(id alloc.MemID) unsafe.Pointer {
	if id == alloc.MemNull {
		return nil
	}
	return unsafe.Add(unsafe.Pointer(&p.words[0]), int(id))
}

func (p *AlignedPool) IsInPool(id alloc.MemID) bool {
	if id == alloc.MemNull {
		return false
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, _, err := p.liveChunk(id)
	return err == nil
}

func (p *AlignedPool) RemainSize() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.freeBytes
}

func (p *AlignedPool) MaxDataSize() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.maxDataSize
}

// ResetMaxDataSize sets the high-water mark back to the number of bytes currently in use
func (p *AlignedPool) ResetMaxDataSize() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.maxDataSize = p.usedBytes
}

func (p *AlignedPool) TotalSize() int {
	return p.size
}

func (p *AlignedPool) IsEmpty() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocationCount == 0
}

// AllocationCount returns the number of live allocations
func (p *AlignedPool) AllocationCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocationCount
}

func (p *AlignedPool) Clear() {
	p.logger.Debug("AlignedPool::Clear")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.reset()
}

// Close releases the backing buffer. Closing a pool that still has live allocations is allowed,
// but is reported as a warning since every outstanding handle is lost.
func (p *AlignedPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.allocationCount > 0 {
		p.logger.Warn("AlignedPool::Close called with live allocations",
			slog.Int("AllocationCount", p.allocationCount),
			slog.Int("UsedBytes", p.usedBytes),
		)
	}

	p.words = nil
	p.size = 0
	p.freeBytes = 0
	p.usedBytes = 0
	p.allocationCount = 0
}

func (p *AlignedPool) visitChunks(visit func(offset, extent int, free bool)) {
	for offset := 0; offset < p.size; {
		header := *p.word(offset)
		extent := int(header & extentMask)
		visit(offset, extent, header&freeBit != 0)
		offset += extent
	}
}

// Layout lists the pool's free regions in address order
func (p *AlignedPool) Layout() []FreeChunk {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var layout []FreeChunk
	p.visitChunks(func(offset, extent int, free bool) {
		if free {
			layout = append(layout, FreeChunk{Begin: offset, Size: extent, OpenEnded: offset+extent == p.size})
		}
	})
	return layout
}

func (p *AlignedPool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats.PoolCount++
	stats.PoolBytes += p.size

	p.visitChunks(func(offset, extent int, free bool) {
		if free {
			stats.AddFreeChunk(extent)
		} else {
			stats.AddAllocation(extent)
		}
	})
}

func (p *AlignedPool) WriteJSON(writer *jwriter.Writer) {
	writeLayout(writer, "AlignedPool", p.size, p.Layout())
}

func (p *AlignedPool) String() string {
	return layoutString("AlignedPool", p.size, p.Layout())
}

// Validate walks the chunk list and verifies that it tiles the buffer, that no two free chunks
// are adjacent, and that the tracked counters agree with the headers
func (p *AlignedPool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.validate()
}

func (p *AlignedPool) validate() error {
	return validateWords(p.size, func(offset int) uint64 { return *p.word(offset) }, p.freeBytes, p.allocationCount)
}

func validateWords(size int, load func(offset int) uint64, trackedFree, trackedCount int) error {
	offset := 0
	freeBytes := 0
	allocationCount := 0
	previousFree := false

	for offset < size {
		header := load(offset)
		extent := int(header & extentMask)
		free := header&freeBit != 0

		if extent < WordSize || extent%WordSize != 0 || offset+extent > size {
			return cerrors.Wrapf(memutils.ErrCorrupted, "chunk at %d has invalid extent %d", offset, extent)
		}
		if header&lockBit != 0 {
			return cerrors.Wrapf(memutils.ErrCorrupted, "chunk at %d is still locked", offset)
		}
		if free && previousFree {
			return cerrors.Wrapf(memutils.ErrCorrupted, "free chunk at %d was not merged with its predecessor", offset)
		}

		if free {
			freeBytes += extent
		} else {
			allocationCount++
		}

		previousFree = free
		offset += extent
	}

	if freeBytes != trackedFree {
		return cerrors.Wrapf(memutils.ErrCorrupted, "free bytes counted %d but tracked %d", freeBytes, trackedFree)
	}
	if allocationCount != trackedCount {
		return cerrors.Wrapf(memutils.ErrCorrupted, "allocations counted %d but tracked %d", allocationCount, trackedCount)
	}

	return nil
}
