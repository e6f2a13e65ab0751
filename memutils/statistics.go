package memutils

import "math"

// Statistics summarizes the occupancy of one or more pools
type Statistics struct {
	PoolCount       int
	AllocationCount int
	PoolBytes       int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.PoolCount = 0
	s.AllocationCount = 0
	s.PoolBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PoolCount += other.PoolCount
	s.AllocationCount += other.AllocationCount
	s.PoolBytes += other.PoolBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the spread of allocation and free chunk sizes.
// AllocationBytes counts chunk extents, headers and padding included.
type DetailedStatistics struct {
	Statistics
	FreeChunkCount    int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeChunkSizeMin  int
	FreeChunkSizeMax  int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeChunkCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeChunkSizeMin = math.MaxInt
	s.FreeChunkSizeMax = 0
}

func (s *DetailedStatistics) AddFreeChunk(size int) {
	s.FreeChunkCount++

	if size < s.FreeChunkSizeMin {
		s.FreeChunkSizeMin = size
	}

	if size > s.FreeChunkSizeMax {
		s.FreeChunkSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeChunkCount += other.FreeChunkCount

	if other.FreeChunkSizeMin < s.FreeChunkSizeMin {
		s.FreeChunkSizeMin = other.FreeChunkSizeMin
	}

	if other.FreeChunkSizeMax > s.FreeChunkSizeMax {
		s.FreeChunkSizeMax = other.FreeChunkSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
