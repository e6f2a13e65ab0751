// Package checked provides an Allocator wrapper that tracks every live allocation, so tests can
// assert that a piece of code returns everything it allocates.
package checked

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arena/alloc"
	"golang.org/x/exp/slog"
)

// Allocations are usually made through CreateObj or one of the reference constructors, so the
// interesting caller is a few frames above Allocate. Set ARENA_CHECKED_ALLOC_FRAMES to change
// how far up the recorded caller is.
const defAllocFrames = 2

var allocFrames = defAllocFrames

func init() {
	if val, ok := os.LookupEnv("ARENA_CHECKED_ALLOC_FRAMES"); ok {
		if f, err := strconv.Atoi(val); err == nil {
			allocFrames = f
		}
	}
}

type liveAllocation struct {
	pc   uintptr
	line int
	size int
}

// TestingT is the subset of testing.T used by AssertSize
type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// Allocator forwards every call to the allocator it wraps and records the size and call site of
// each live allocation
type Allocator struct {
	logger *slog.Logger
	mem    alloc.Allocator
	size   atomic.Int64

	lock   sync.Mutex
	allocs *swiss.Map[alloc.MemID, liveAllocation]
}

var _ alloc.Allocator = &Allocator{}

// NewAllocator wraps mem. logger may be nil.
func NewAllocator(logger *slog.Logger, mem alloc.Allocator) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Allocator{
		logger: logger,
		mem:    mem,
		allocs: swiss.NewMap[alloc.MemID, liveAllocation](64),
	}
}

// CurrentAlloc returns the number of requested bytes that have not been deallocated
func (a *Allocator) CurrentAlloc() int {
	return int(a.size.Load())
}

// LiveCount returns the number of allocations that have not been deallocated
func (a *Allocator) LiveCount() int {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.allocs.Count()
}

func (a *Allocator) Allocate(size int, alignment uint) (alloc.MemID, error) {
	id, err := a.mem.Allocate(size, alignment)
	if err != nil || id == alloc.MemNull {
		return id, err
	}

	a.size.Add(int64(size))

	record := liveAllocation{size: size}
	if pc, _, line, ok := runtime.Caller(allocFrames); ok {
		record.pc = pc
		record.line = line
	}

	a.lock.Lock()
	a.allocs.Put(id, record)
	a.lock.Unlock()

	return id, nil
}

func (a *Allocator) Deallocate(id alloc.MemID) error {
	err := a.mem.Deallocate(id)
	if err != nil || id == alloc.MemNull {
		return err
	}

	a.lock.Lock()
	record, ok := a.allocs.Get(id)
	if ok {
		a.allocs.Delete(id)
	}
	a.lock.Unlock()

	if ok {
		a.size.Add(-int64(record.size))
	}
	return nil
}

func (a *Allocator) Get(id alloc.MemID) unsafe.Pointer {
	return a.mem.Get(id)
}

func (a *Allocator) RemainSize() int {
	return a.mem.RemainSize()
}

// Clear clears the wrapped allocator and forgets every tracked allocation
func (a *Allocator) Clear() {
	a.mem.Clear()

	a.lock.Lock()
	a.allocs.Clear()
	a.lock.Unlock()

	a.size.Store(0)
}

func (a *Allocator) Traits() alloc.TraitFlags {
	return a.mem.Traits()
}

func (a *Allocator) ID() uint64 {
	return a.mem.ID()
}

// AssertSize reports every live allocation as a leak and fails t if the outstanding byte count
// is not size
func (a *Allocator) AssertSize(t TestingT, size int) {
	t.Helper()

	a.lock.Lock()
	a.allocs.Iter(func(id alloc.MemID, record liveAllocation) bool {
		t.Errorf("LEAK of %d bytes at handle %d FROM %s line %d", record.size, id, funcName(record.pc), record.line)
		return false
	})
	a.lock.Unlock()

	if current := a.CurrentAlloc(); current != size {
		t.Errorf("invalid memory size exp=%d, got=%d", size, current)
	}
}

// LogLeaks writes a warning for every live allocation and returns how many there were
func (a *Allocator) LogLeaks() int {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.allocs.Iter(func(id alloc.MemID, record liveAllocation) bool {
		a.logger.Warn("checked.Allocator: live allocation",
			slog.Int64("Handle", int64(id)),
			slog.Int("Size", record.size),
			slog.String("Caller", funcName(record.pc)),
			slog.Int("Line", record.line),
		)
		return false
	})
	return a.allocs.Count()
}

func funcName(pc uintptr) string {
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "unknown"
	}
	return f.Name()
}

// Scope remembers the outstanding byte count of an Allocator, so a test can check that a block
// of code returned everything it allocated
type Scope struct {
	alloc *Allocator
	size  int
}

func NewScope(a *Allocator) *Scope {
	return &Scope{alloc: a, size: a.CurrentAlloc()}
}

func (s *Scope) CheckSize(t TestingT) {
	if current := s.alloc.CurrentAlloc(); current != s.size {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", s.size, current)
	}
}
