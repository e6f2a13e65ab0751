package pool_test

import (
	"math/rand"
	"testing"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arena/alloc"
	"github.com/vkngwrapper/arena/alloc/pool"
	"golang.org/x/sync/errgroup"
)

func newConcurrentPool(t *testing.T, capacity int) *pool.ConcurrentPool {
	p, err := pool.NewConcurrentPool(testLogger(), pool.CreateOptions{Capacity: capacity})
	require.NoError(t, err)
	return p
}

type stamped struct {
	id   alloc.MemID
	size int
}

// stamp fills an allocation with a byte unique to its owner so that overlapping chunks show up
// as corrupted payloads
func stamp(p alloc.Allocator, s stamped, owner byte) {
	payload := unsafe.Slice((*byte)(p.Get(s.id)), s.size)
	for i := range payload {
		payload[i] = owner
	}
}

func checkStamp(p alloc.Allocator, s stamped, owner byte) error {
	payload := unsafe.Slice((*byte)(p.Get(s.id)), s.size)
	for i, b := range payload {
		if b != owner {
			return cerrors.Newf("allocation %d byte %d was overwritten: expected %d but found %d", s.id, i, owner, b)
		}
	}
	return nil
}

func TestConcurrentPoolParallelAllocate(t *testing.T) {
	const workers = 8
	const perWorker = 128
	const capacity = 1 << 18

	p := newConcurrentPool(t, capacity)

	var g errgroup.Group
	for worker := 0; worker < workers; worker++ {
		owner := byte(worker + 1)
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(int64(owner)))
			allocations := make([]stamped, 0, perWorker)

			for i := 0; i < perWorker; i++ {
				size := 1 + rnd.Intn(64)
				alignment := uint(1) << rnd.Intn(7)

				id, err := p.Allocate(size, alignment)
				if err != nil {
					return err
				}
				if uintptr(p.Get(id))%uintptr(alignment) != 0 {
					return cerrors.Newf("allocation %d is not aligned to %d", id, alignment)
				}

				s := stamped{id: id, size: size}
				stamp(p, s, owner)
				allocations = append(allocations, s)
			}

			for _, s := range allocations {
				if err := checkStamp(p, s, owner); err != nil {
					return err
				}
				if !p.IsInPool(s.id) {
					return cerrors.Newf("allocation %d is not in the pool", s.id)
				}
			}

			for _, s := range allocations {
				if err := p.Deallocate(s.id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, capacity, p.RemainSize())
	require.True(t, p.IsEmpty())
	require.Equal(t, 0, p.AllocationCount())
	require.Equal(t, []pool.FreeChunk{{Begin: 0, Size: capacity, OpenEnded: true}}, p.Layout())
	require.NoError(t, p.Validate())
}

func TestConcurrentPoolMixedWorkload(t *testing.T) {
	const workers = 8
	const iterations = 2000
	const capacity = 1 << 16

	p := newConcurrentPool(t, capacity)

	var g errgroup.Group
	for worker := 0; worker < workers; worker++ {
		owner := byte(worker + 1)
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(int64(owner) * 7919))
			var live []stamped

			for i := 0; i < iterations; i++ {
				if len(live) > 0 && (rnd.Intn(2) == 0 || len(live) >= 32) {
					index := rnd.Intn(len(live))
					s := live[index]
					if err := checkStamp(p, s, owner); err != nil {
						return err
					}
					if err := p.Deallocate(s.id); err != nil {
						return err
					}
					live[index] = live[len(live)-1]
					live = live[:len(live)-1]
					continue
				}

				size := 1 + rnd.Intn(96)
				id, err := p.Allocate(size, uint(1)<<rnd.Intn(6))
				if cerrors.Is(err, alloc.ErrOutOfMemory) {
					continue
				}
				if err != nil {
					return err
				}

				s := stamped{id: id, size: size}
				stamp(p, s, owner)
				live = append(live, s)
			}

			for _, s := range live {
				if err := checkStamp(p, s, owner); err != nil {
					return err
				}
				if err := p.Deallocate(s.id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, capacity, p.RemainSize())
	require.True(t, p.IsEmpty())
	require.NoError(t, p.Validate())
	require.LessOrEqual(t, p.MaxDataSize(), capacity)
}

func TestConcurrentPoolExhaustion(t *testing.T) {
	const workers = 4
	const capacity = 4096

	p := newConcurrentPool(t, capacity)
	counts := make([]int, workers)

	var g errgroup.Group
	for worker := 0; worker < workers; worker++ {
		worker := worker
		g.Go(func() error {
			var ids []alloc.MemID
			for {
				id, err := p.Allocate(8, 8)
				if cerrors.Is(err, alloc.ErrOutOfMemory) {
					break
				}
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			counts[worker] = len(ids)

			for _, id := range ids {
				if err := p.Deallocate(id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	total := 0
	for _, count := range counts {
		total += count
	}
	// Chunks can be freed and reused by another worker before it gives up, so the total is a floor
	require.GreaterOrEqual(t, total, capacity/(8+pool.WordSize))
	require.Equal(t, capacity, p.RemainSize())
	require.NoError(t, p.Validate())
}

func TestConcurrentPoolParallelDoubleFree(t *testing.T) {
	p := newConcurrentPool(t, 1024)
	id := mustAllocate(t, p, 32)

	var g errgroup.Group
	results := make([]error, 8)
	for i := range results {
		i := i
		g.Go(func() error {
			results[i] = p.Deallocate(id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, cerrors.Is(err, alloc.ErrInvalidHandle))
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1024, p.RemainSize())
	require.NoError(t, p.Validate())
}

// concurrentFill allocates and then frees perWorker 8-byte elements from each of workers goroutines
func concurrentFill(t *testing.T, a alloc.Allocator, workers, perWorker int) {
	var g errgroup.Group
	for worker := 0; worker < workers; worker++ {
		g.Go(func() error {
			ids := make([]alloc.MemID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				id, err := a.Allocate(8, 0)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			for _, id := range ids {
				if err := a.Deallocate(id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestSynchronizedAlignedPool(t *testing.T) {
	p, err := pool.NewAlignedPool(testLogger(), pool.CreateOptions{
		Flags:    pool.CreateInternallySynchronized,
		Capacity: 8 * 64 * (8 + pool.WordSize),
	})
	require.NoError(t, err)
	require.True(t, p.Traits().Has(alloc.TraitConcurrent))

	concurrentFill(t, p, 8, 64)
	require.True(t, p.IsEmpty())
	require.Equal(t, p.TotalSize(), p.RemainSize())
	require.NoError(t, p.Validate())
}

func TestConcurrentPoolInteriorLookupsDoNotReadPayload(t *testing.T) {
	const rounds = 2000

	p := newConcurrentPool(t, 4096)
	plain := stamped{id: mustAllocate(t, p, 64), size: 64}
	padded := stamped{id: mustAllocateAligned(t, p, 64, 256), size: 64}

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < rounds; i++ {
			stamp(p, plain, byte(i))
			stamp(p, padded, byte(i))
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < rounds; i++ {
			for _, s := range []stamped{plain, padded} {
				interior := s.id + alloc.MemID(W*(1+i%7))
				if p.IsInPool(interior) {
					return cerrors.Newf("interior handle %d reported live", interior)
				}
				if err := p.Deallocate(interior); !cerrors.Is(err, alloc.ErrInvalidHandle) {
					return cerrors.Newf("deallocating interior handle %d returned %v", interior, err)
				}
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	require.NoError(t, p.Deallocate(plain.id))
	require.NoError(t, p.Deallocate(padded.id))
	require.True(t, p.IsEmpty())
	require.NoError(t, p.Validate())
}
