package memutils

import "math"

// Statistics holds the basic counters for one or more regions
type Statistics struct {
	// RegionCount is the number of regions summed into this object
	RegionCount int
	// AllocationCount is the number of live allocations
	AllocationCount int
	// RegionBytes is the total size in bytes of the summed regions
	RegionBytes int
	// AllocationBytes is the number of bytes held by live allocations, measured in whole buddy blocks
	AllocationBytes int
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

// AddStatistics sums other into s
func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionCount += other.RegionCount
	s.AllocationCount += other.AllocationCount
	s.RegionBytes += other.RegionBytes
	s.AllocationBytes += other.AllocationBytes
}

// FreeBytes is the number of bytes not held by any allocation
func (s *Statistics) FreeBytes() int {
	return s.RegionBytes - s.AllocationBytes
}

// DetailedStatistics extends Statistics with the size distribution of allocations and of free blocks.
// A free block is a maximal free buddy block: two free buddies are always reported as their merged parent.
type DetailedStatistics struct {
	Statistics
	FreeBlockCount    int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeBlockSizeMin  int
	FreeBlockSizeMax  int
}

// Clear resets the object. Minimums start at math.MaxInt so that the first sample always replaces them.
func (s *DetailedStatistics) Clear() {
	*s = DetailedStatistics{
		AllocationSizeMin: math.MaxInt,
		FreeBlockSizeMin:  math.MaxInt,
	}
}

// AddFreeBlock records one maximal free block
func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.FreeBlockCount++
	widenRange(&s.FreeBlockSizeMin, &s.FreeBlockSizeMax, size, size)
}

// AddAllocation records one live allocation of a whole block of the given size
func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size
	widenRange(&s.AllocationSizeMin, &s.AllocationSizeMax, size, size)
}

// AddDetailedStatistics sums other into s. Ranges of an object with no samples are still at their
// cleared values and leave s unchanged.
func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount
	widenRange(&s.FreeBlockSizeMin, &s.FreeBlockSizeMax, other.FreeBlockSizeMin, other.FreeBlockSizeMax)
	widenRange(&s.AllocationSizeMin, &s.AllocationSizeMax, other.AllocationSizeMin, other.AllocationSizeMax)
}

func widenRange(minimum, maximum *int, low, high int) {
	if low < *minimum {
		*minimum = low
	}

	if high > *maximum {
		*maximum = high
	}
}
