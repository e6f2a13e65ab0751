package pool

import (
	"encoding/binary"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/internal/utils"
	"github.com/vkngwrapper/arena/memutils"
	"golang.org/x/exp/slog"
)

const (
	// PoolHeaderSize is the number of bytes each chunk header occupies in a Pool's buffer
	PoolHeaderSize int = 4

	poolFreeBit  uint32 = 1 << 31
	poolSizeMask uint32 = 1<<30 - 1
)

// Pool is a fixed-capacity allocator over a single byte buffer. Chunks are laid out back to back,
// each one preceded by a 4-byte header holding its payload capacity and a free flag, so the free
// list lives entirely in the buffer and is walked in address order. Everything after the last
// chunk is an open-ended free region that carries no header.
//
// Allocation is first-fit, and freed chunks are merged with free neighbors immediately, so two
// free regions are never adjacent. Pool does not honor alignment: every allocation is packed
// directly behind its header.
//
// Pool is not safe for concurrent use unless it was created with CreateInternallySynchronized.
type Pool struct {
	logger *slog.Logger
	id     uint64
	mutex  utils.OptionalMutex

	buffer []byte
	// tail is the start of the open-ended free region
	tail int

	freeBytes       int
	usedBytes       int
	maxDataSize     int
	allocationCount int
}

var _ alloc.PoolAllocator = &Pool{}

// NewPool creates a Pool with a backing buffer of options.Capacity bytes
func NewPool(logger *slog.Logger, options CreateOptions) (*Pool, error) {
	if options.Capacity <= 0 || options.Capacity > int(poolSizeMask) {
		return nil, cerrors.Newf("pool capacity must be in (0, %d], but was %d", poolSizeMask, options.Capacity)
	}

	p := &Pool{
		logger:    orDiscard(logger),
		id:        alloc.NextAllocatorID(),
		buffer:    make([]byte, options.Capacity),
		freeBytes: options.Capacity,
	}
	p.mutex.UseMutex = options.Flags.synchronized()

	return p, nil
}

func (p *Pool) readHeader(offset int) (capacity int, free bool) {
	header := binary.LittleEndian.Uint32(p.buffer[offset:])
	return int(header & poolSizeMask), header&poolFreeBit != 0
}

func (p *Pool) writeHeader(offset int, capacity int, free bool) {
	header := uint32(capacity)
	if free {
		header |= poolFreeBit
	}
	binary.LittleEndian.PutUint32(p.buffer[offset:], header)
}

func (p *Pool) ID() uint64 {
	return p.id
}

func (p *Pool) Traits() alloc.TraitFlags {
	traits := alloc.TraitPool | alloc.TraitContiguous | alloc.TraitLimitedSize
	if p.mutex.Synchronized() {
		traits |= alloc.TraitConcurrent
	}
	return traits
}

func (p *Pool) Allocate(size int, alignment uint) (alloc.MemID, error) {
	p.logger.Debug("Pool::Allocate", slog.Int("Size", size))

	if size < 0 {
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrInvalidSize, "size is %d", size)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return alloc.MemNull, err
	}
	if alignment > 1 {
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrUnalignable, "pool cannot align to %d", alignment)
	}
	if size == 0 {
		return alloc.MemNull, nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset, extent := p.claimChunk(size)
	if offset < 0 {
		p.logger.Debug("    Pool::Allocate FAILED", slog.Int("Size", size), slog.Int("Remaining", p.freeBytes))
		return alloc.MemNull, cerrors.Wrapf(alloc.ErrOutOfMemory, "could not fit %d bytes in pool of %d with %d bytes free", size, len(p.buffer), p.freeBytes)
	}

	p.freeBytes -= extent
	p.usedBytes += extent
	p.allocationCount++
	if p.usedBytes > p.maxDataSize {
		p.maxDataSize = p.usedBytes
	}

	memutils.DebugValidate(validateFunc(p.validate))
	return alloc.MemID(offset + PoolHeaderSize), nil
}

// claimChunk marks the first chunk that can hold size bytes as used, splitting off the rest of
// the chunk when it is large enough to carry its own header. It returns the chunk's offset and
// extent, or -1 if nothing fits.
func (p *Pool) claimChunk(size int) (int, int) {
	needed := size + PoolHeaderSize

	for offset := 0; offset < p.tail; {
		capacity, free := p.readHeader(offset)
		extent := capacity + PoolHeaderSize

		if free && capacity >= size {
			if extent-needed >= PoolHeaderSize {
				p.writeHeader(offset, size, false)
				p.writeHeader(offset+needed, extent-needed-PoolHeaderSize, true)
				return offset, needed
			}

			p.writeHeader(offset, capacity, false)
			return offset, extent
		}

		offset += extent
	}

	if len(p.buffer)-p.tail < needed {
		return -1, 0
	}

	offset := p.tail
	p.writeHeader(offset, size, false)
	p.tail += needed
	return offset, needed
}

// findChunk walks the chunk list looking for the chunk that starts at offset. It returns the
// offset of the chunk before it, or -1 if it is the first chunk.
func (p *Pool) findChunk(offset int) (previous int, found bool) {
	previous = -1
	current := 0
	for current < p.tail && current < offset {
		capacity, _ := p.readHeader(current)
		previous = current
		current += capacity + PoolHeaderSize
	}

	return previous, current == offset && current < p.tail
}

func (p *Pool) Deallocate(id alloc.MemID) error {
	p.logger.Debug("Pool::Deallocate")

	if id == alloc.MemNull {
		return nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset := int(id) - PoolHeaderSize
	if offset < 0 || offset >= p.tail {
		return cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is outside the pool", id)
	}

	previous, found := p.findChunk(offset)
	if !found {
		return cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not the start of a chunk", id)
	}
	capacity, free := p.readHeader(offset)
	if free {
		return cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d was already deallocated", id)
	}

	extent := capacity + PoolHeaderSize
	p.freeBytes += extent
	p.usedBytes -= extent
	p.allocationCount--

	start := offset
	next := offset + extent
	if next < p.tail {
		nextCapacity, nextFree := p.readHeader(next)
		if nextFree {
			extent += nextCapacity + PoolHeaderSize
		}
	}

	if previous >= 0 {
		previousCapacity, previousFree := p.readHeader(previous)
		if previousFree {
			start = previous
			extent += previousCapacity + PoolHeaderSize
		}
	}

	if start+extent == p.tail {
		p.tail = start
	} else {
		p.writeHeader(start, extent-PoolHeaderSize, true)
	}

	memutils.DebugValidate(validateFunc(p.validate))
	return nil
}

func (p *Pool) Get(id alloc.MemID) unsafe.Pointer {
	if id == alloc.MemNull {
		return nil
	}
	return unsafe.Pointer(&p.buffer[id])
}

// Size returns the number of payload bytes available at id, which may be larger than the size
// that was requested
func (p *Pool) Size(id alloc.MemID) int {
	if id == alloc.MemNull {
		return 0
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	capacity, _ := p.readHeader(int(id) - PoolHeaderSize)
	return capacity
}

func (p *Pool) IsInPool(id alloc.MemID) bool {
	if id == alloc.MemNull {
		return false
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset := int(id) - PoolHeaderSize
	if offset < 0 || offset >= p.tail {
		return false
	}

	_, found := p.findChunk(offset)
	if !found {
		return false
	}

	_, free := p.readHeader(offset)
	return !free
}

func (p *Pool) RemainSize() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.freeBytes
}

func (p *Pool) MaxDataSize() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.maxDataSize
}

// ResetMaxDataSize sets the high-water mark back to the number of bytes currently in use
func (p *Pool) ResetMaxDataSize() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.maxDataSize = p.usedBytes
}

func (p *Pool) TotalSize() int {
	return len(p.buffer)
}

func (p *Pool) IsEmpty() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocationCount == 0
}

// AllocationCount returns the number of live allocations
func (p *Pool) AllocationCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocationCount
}

func (p *Pool) Clear() {
	p.logger.Debug("Pool::Clear")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.tail = 0
	p.freeBytes = len(p.buffer)
	p.usedBytes = 0
	p.allocationCount = 0
}

// Close releases the backing buffer. Closing a pool that still has live allocations is allowed,
// but is reported as a warning since every outstanding handle is lost.
func (p *Pool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.allocationCount > 0 {
		p.logger.Warn("Pool::Close called with live allocations",
			slog.Int("AllocationCount", p.allocationCount),
			slog.Int("UsedBytes", p.usedBytes),
		)
	}

	p.buffer = nil
	p.tail = 0
	p.freeBytes = 0
	p.usedBytes = 0
	p.allocationCount = 0
}

func (p *Pool) visitChunks(visit func(offset, extent int, free bool)) {
	for offset := 0; offset < p.tail; {
		capacity, free := p.readHeader(offset)
		visit(offset, capacity+PoolHeaderSize, free)
		offset += capacity + PoolHeaderSize
	}
}

// Layout lists the pool's free regions in address order
func (p *Pool) Layout() []FreeChunk {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var layout []FreeChunk
	p.visitChunks(func(offset, extent int, free bool) {
		if free {
			layout = append(layout, FreeChunk{Begin: offset, Size: extent})
		}
	})

	if p.tail < len(p.buffer) {
		layout = append(layout, FreeChunk{Begin: p.tail, Size: len(p.buffer) - p.tail, OpenEnded: true})
	}

	return layout
}

func (p *Pool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats.PoolCount++
	stats.PoolBytes += len(p.buffer)

	p.visitChunks(func(offset, extent int, free bool) {
		if free {
			stats.AddFreeChunk(extent)
		} else {
			stats.AddAllocation(extent)
		}
	})

	if p.tail < len(p.buffer) {
		stats.AddFreeChunk(len(p.buffer) - p.tail)
	}
}

func (p *Pool) WriteJSON(writer *jwriter.Writer) {
	writeLayout(writer, "Pool", len(p.buffer), p.Layout())
}

func (p *Pool) String() string {
	return layoutString("Pool", len(p.buffer), p.Layout())
}

// Validate walks the chunk list and verifies that it tiles the buffer, that no two free regions
// are adjacent, and that the tracked counters agree with the headers
func (p *Pool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.validate()
}

func (p *Pool) validate() error {
	if p.tail > len(p.buffer) {
		return cerrors.Wrapf(memutils.ErrCorrupted, "tail %d is past the end of the buffer", p.tail)
	}

	offset := 0
	freeBytes := len(p.buffer) - p.tail
	allocationCount := 0
	previousFree := false

	for offset < p.tail {
		capacity, free := p.readHeader(offset)
		extent := capacity + PoolHeaderSize
		if offset+extent > p.tail {
			return cerrors.Wrapf(memutils.ErrCorrupted, "chunk at %d with extent %d overlaps the tail at %d", offset, extent, p.tail)
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

	if previousFree {
		return cerrors.Wrapf(memutils.ErrCorrupted, "free chunk before the tail at %d was not merged into it", p.tail)
	}
	if freeBytes != p.freeBytes {
		return cerrors.Wrapf(memutils.ErrCorrupted, "free bytes counted %d but tracked %d", freeBytes, p.freeBytes)
	}
	if allocationCount != p.allocationCount {
		return cerrors.Wrapf(memutils.ErrCorrupted, "allocations counted %d but tracked %d", allocationCount, p.allocationCount)
	}

	return nil
}
