package pool

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/memutils"
	"golang.org/x/exp/slog"
)

// ConcurrentPool has the same layout and contract as AlignedPool, but Allocate and Deallocate
// may be called from any number of goroutines without an external lock.
//
// There is no pool-wide mutex. Each chunk header carries a lock bit that is taken with a
// compare-and-swap. The chunk list is walked with lock coupling: the next header is locked
// before the current one is released, so a walker never reads a header that a concurrent merge
// has turned into payload bytes. Locks are always taken in ascending address order, which rules
// out lock cycles. A contended header is retried after yielding, and the claim re-reads the
// header rather than acting on what it saw before.
//
// RemainSize, MaxDataSize, IsEmpty and AllocationCount read atomic counters that are updated
// while the affected chunk is locked, so they reflect every completed operation. IsInPool walks
// the list under lock coupling and is exact for the queried handle. Layout, String, Validate
// and AddDetailedStatistics are diagnostics and are only exact while no other goroutine is
// mutating the pool. Clear must not be called concurrently with any other method.
type ConcurrentPool struct {
	logger *slog.Logger
	id     uint64

	words []uint64
	size  int
	base  uintptr

	freeBytes       atomic.Int64
	usedBytes       atomic.Int64
	maxDataSize     atomic.Int64
	allocationCount atomic.Int64
}

var _ alloc.PoolAllocator = &ConcurrentPool{}

// NewConcurrentPool creates a ConcurrentPool with a backing buffer of options.Capacity bytes.
// The capacity must be a multiple of WordSize. options.Flags is ignored.
func NewConcurrentPool(logger *slog.Logger, options CreateOptions) (*ConcurrentPool, error) {
	err := checkAlignedCapacity(options.Capacity)
	if err != nil {
		return nil, err
	}

	words := make([]uint64, options.Capacity/WordSize)
	p := &ConcurrentPool{
		logger: orDiscard(logger),
		id:     alloc.NextAllocatorID(),
		words:  words,
		size:   options.Capacity,
		base:   uintptr(unsafe.Pointer(&words[0])),
	}
	p.reset()

	return p, nil
}

func (p *ConcurrentPool) reset() {
	p.header(0).Store(freeBit | uint64(p.size))
	p.freeBytes.Store(int64(p.size))
	p.usedBytes.Store(0)
	p.allocationCount.Store(0)
}

func (p *ConcurrentPool) header(offset int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&p.words[offset/WordSize]))
}

// lock spins until it owns the header at offset and returns the header value without the lock bit
func (p *ConcurrentPool) lock(offset int) uint64 {
	word := p.header(offset)
	for {
		header := word.Load()
		if header&lockBit == 0 && word.CompareAndSwap(header, header|lockBit) {
			return header
		}
		runtime.Gosched()
	}
}

// unlock publishes a new header value for a chunk this goroutine has locked
func (p *ConcurrentPool) unlock(offset int, header uint64) {
	p.header(offset).Store(header &^ lockBit)
}

func (p *ConcurrentPool) ID() uint64 {
	return p.id
}

func (p *ConcurrentPool) Traits() alloc.TraitFlags {
	return alloc.TraitPool | alloc.TraitAlignable | alloc.TraitContiguous | alloc.TraitLimitedSize | alloc.TraitConcurrent
}

func (p *ConcurrentPool) Allocate(size int, alignment uint) (alloc.MemID, error) {
	p.logger.Debug("ConcurrentPool::Allocate", slog.Int("Size", size), slog.Int("Alignment", int(alignment)))

	size, alignment, err := checkAlignedRequest(size, alignment)
	if err != nil {
		return alloc.MemNull, err
	}
	if size == 0 {
		return alloc.MemNull, nil
	}

	offset := 0
	header := p.lock(offset)
	for {
		extent := int(header & extentMask)

		if header&freeBit != 0 {
			placement := placeInChunk(p.base, offset, size, alignment)
			if placement.needed <= extent {
				return p.claim(offset, extent, placement), nil
			}
		}

		next := offset + extent
		if next >= p.size {
			p.unlock(offset, header)
			break
		}

		nextHeader := p.lock(next)
		p.unlock(offset, header)
		offset, header = next, nextHeader
	}

	p.logger.Debug("    ConcurrentPool::Allocate FAILED", slog.Int("Size", size), slog.Int64("Remaining", p.freeBytes.Load()))
	return alloc.MemNull, cerrors.Wrapf(alloc.ErrOutOfMemory, "could not fit %d bytes aligned to %d in pool of %d", size, alignment, p.size)
}

// claim splits and publishes a free chunk whose header the caller has locked
func (p *ConcurrentPool) claim(offset, extent int, placement chunkPlacement) alloc.MemID {
	if extent-placement.needed >= WordSize {
		// The remainder can only be reached through the locked chunk, so it is safe to publish
		// before the chunk itself
		p.header(offset + placement.needed).Store(freeBit | uint64(extent-placement.needed))
		extent = placement.needed
	}

	if placement.padding > 0 {
		p.header(offset + WordSize).Store(paddingBit | uint64(placement.padding))
		p.header(offset + placement.padding).Store(paddingBit | uint64(placement.padding))
	}

	p.freeBytes.Add(-int64(extent))
	used := p.usedBytes.Add(int64(extent))
	p.allocationCount.Add(1)
	for {
		highWater := p.maxDataSize.Load()
		if used <= highWater || p.maxDataSize.CompareAndSwap(highWater, used) {
			break
		}
	}

	p.unlock(offset, paddedHeader(extent, placement.padding))
	return alloc.MemID(offset + WordSize + placement.padding)
}

// payloadOffset returns where the payload of the used chunk at offset begins. The caller must
// hold the chunk's lock. Only words that belong to the pool are read, never payload bytes that
// their owner may be writing.
func (p *ConcurrentPool) payloadOffset(offset int, header uint64) int {
	if header&paddedBit == 0 {
		return offset + WordSize
	}
	return offset + WordSize + int(p.header(offset+WordSize).Load()&extentMask)
}

// lockLiveChunk walks the list under lock coupling to the chunk containing id, and returns it
// locked together with its predecessor, if any. The predecessor stays locked while the walk
// advances, so at most three headers are held at once, always in ascending order.
func (p *ConcurrentPool) lockLiveChunk(id alloc.MemID) (start int, header uint64, previous int, previousHeader uint64, err error) {
	if !validHandleShape(id, p.size) {
		return 0, 0, 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is outside the pool", id)
	}

	previous = -1
	header = p.lock(start)
	for next := int(header & extentMask); int(id) >= next; next = start + int(header&extentMask) {
		nextHeader := p.lock(next)
		if previous >= 0 {
			p.unlock(previous, previousHeader)
		}
		previous, previousHeader = start, header
		start, header = next, nextHeader
	}

	if header&freeBit != 0 || int(id) != p.payloadOffset(start, header) {
		p.unlock(start, header)
		if previous >= 0 {
			p.unlock(previous, previousHeader)
		}
		return 0, 0, 0, 0, cerrors.Wrapf(alloc.ErrInvalidHandle, "handle %d is not a live allocation", id)
	}

	return start, header, previous, previousHeader, nil
}

func (p *ConcurrentPool) Deallocate(id alloc.MemID) error {
	p.logger.Debug("ConcurrentPool::Deallocate")

	if id == alloc.MemNull {
		return nil
	}

	start, header, previous, previousHeader, err := p.lockLiveChunk(id)
	if err != nil {
		return err
	}

	extent := int(header & extentMask)
	p.freeBytes.Add(int64(extent))
	p.usedBytes.Add(-int64(extent))
	p.allocationCount.Add(-1)

	// Absorb free successors. A locked successor may be on its way to becoming free, so wait for
	// it instead of skipping the merge.
	for {
		next := start + extent
		if next >= p.size {
			break
		}

		nextHeader := p.lock(next)
		if nextHeader&freeBit == 0 {
			p.unlock(next, nextHeader)
			break
		}
		// The absorbed header stays locked: it is now interior to this chunk and unreachable
		extent += int(nextHeader & extentMask)
	}

	if previous >= 0 && previousHeader&freeBit != 0 {
		p.unlock(previous, freeBit|(previousHeader&extentMask+uint64(extent)))
		return nil
	}

	p.unlock(start, freeBit|uint64(extent))
	if previous >= 0 {
		p.unlock(previous, previousHeader)
	}
	return nil
}

func (p *ConcurrentPool) Get(id alloc.MemID) unsafe.Pointer {
	if id == alloc.MemNull {
		return nil
	}
	return unsafe.Add(unsafe.Pointer(&p.words[0]), int(id))
}

func (p *ConcurrentPool) IsInPool(id alloc.MemID) bool {
	if id == alloc.MemNull || !validHandleShape(id, p.size) {
		return false
	}

	offset := 0
	header := p.lock(offset)
	for {
		extent := int(header & extentMask)
		if int(id) < offset+extent {
			live := header&freeBit == 0 && int(id) == p.payloadOffset(offset, header)

			p.unlock(offset, header)
			return live
		}

		next := offset + extent
		if next >= p.size {
			p.unlock(offset, header)
			return false
		}

		nextHeader := p.lock(next)
		p.unlock(offset, header)
		offset, header = next, nextHeader
	}
}

func (p *ConcurrentPool) RemainSize() int {
	return int(p.freeBytes.Load())
}

func (p *ConcurrentPool) MaxDataSize() int {
	return int(p.maxDataSize.Load())
}

// ResetMaxDataSize sets the high-water mark back to the number of bytes currently in use
func (p *ConcurrentPool) ResetMaxDataSize() {
	p.maxDataSize.Store(p.usedBytes.Load())
}

func (p *ConcurrentPool) TotalSize() int {
	return p.size
}

func (p *ConcurrentPool) IsEmpty() bool {
	return p.allocationCount.Load() == 0
}

// AllocationCount returns the number of live allocations
func (p *ConcurrentPool) AllocationCount() int {
	return int(p.allocationCount.Load())
}

// Clear resets the pool to empty. It must not race with any other method.
func (p *ConcurrentPool) Clear() {
	p.logger.Debug("ConcurrentPool::Clear")
	p.reset()
}

// Close releases the backing buffer. Closing a pool that still has live allocations is allowed,
// but is reported as a warning since every outstanding handle is lost. It must not race with
// any other method.
func (p *ConcurrentPool) Close() {
	count := p.allocationCount.Load()
	if count > 0 {
		p.logger.Warn("ConcurrentPool::Close called with live allocations",
			slog.Int64("AllocationCount", count),
			slog.Int64("UsedBytes", p.usedBytes.Load()),
		)
	}

	p.words = nil
	p.size = 0
	p.freeBytes.Store(0)
	p.usedBytes.Store(0)
	p.allocationCount.Store(0)
}

func (p *ConcurrentPool) visitChunks(visit func(offset, extent int, free bool)) {
	for offset := 0; offset < p.size; {
		header := p.header(offset).Load()
		extent := int(header & extentMask)
		visit(offset, extent, header&freeBit != 0)
		offset += extent
	}
}

// Layout lists the pool's free regions in address order. It is only exact while the pool is
// not being mutated.
func (p *ConcurrentPool) Layout() []FreeChunk {
	var layout []FreeChunk
	p.visitChunks(func(offset, extent int, free bool) {
		if free {
			layout = append(layout, FreeChunk{Begin: offset, Size: extent, OpenEnded: offset+extent == p.size})
		}
	})
	return layout
}

func (p *ConcurrentPool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
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

func (p *ConcurrentPool) WriteJSON(writer *jwriter.Writer) {
	writeLayout(writer, "ConcurrentPool", p.size, p.Layout())
}

func (p *ConcurrentPool) String() string {
	return layoutString("ConcurrentPool", p.size, p.Layout())
}

// Validate walks the chunk list and verifies that it tiles the buffer, that no two free chunks
// are adjacent, that no chunk is left locked, and that the counters agree with the headers.
// It is only meaningful while the pool is not being mutated.
func (p *ConcurrentPool) Validate() error {
	return validateWords(p.size, func(offset int) uint64 {
		return p.header(offset).Load()
	}, int(p.freeBytes.Load()), int(p.allocationCount.Load()))
}
