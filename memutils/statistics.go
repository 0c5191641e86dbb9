package memutils

import "math"

// Statistics summarizes the occupancy of one or more fixed-capacity tables
type Statistics struct {
	TableCount      int
	SlotCount       int
	AllocationCount int
	SlotBytes       int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.TableCount = 0
	s.SlotCount = 0
	s.AllocationCount = 0
	s.SlotBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.TableCount += other.TableCount
	s.SlotCount += other.SlotCount
	s.AllocationCount += other.AllocationCount
	s.SlotBytes += other.SlotBytes
	s.AllocationBytes += other.AllocationBytes
}

// RegionStatistics summarizes the fpage chains of one or more address spaces
type RegionStatistics struct {
	SpaceCount    int
	FpageCount    int
	AlwaysCount   int
	MappedBytes   uint64
	RegionSizeMin uint64
	RegionSizeMax uint64
}

func (s *RegionStatistics) Clear() {
	s.SpaceCount = 0
	s.FpageCount = 0
	s.AlwaysCount = 0
	s.MappedBytes = 0
	s.RegionSizeMin = math.MaxUint64
	s.RegionSizeMax = 0
}

func (s *RegionStatistics) AddRegion(size uint64, always bool) {
	s.FpageCount++
	s.MappedBytes += size
	if always {
		s.AlwaysCount++
	}

	if size < s.RegionSizeMin {
		s.RegionSizeMin = size
	}

	if size > s.RegionSizeMax {
		s.RegionSizeMax = size
	}
}

func (s *RegionStatistics) AddRegionStatistics(other *RegionStatistics) {
	s.SpaceCount += other.SpaceCount
	s.FpageCount += other.FpageCount
	s.AlwaysCount += other.AlwaysCount
	s.MappedBytes += other.MappedBytes

	if other.RegionSizeMin < s.RegionSizeMin {
		s.RegionSizeMin = other.RegionSizeMin
	}

	if other.RegionSizeMax > s.RegionSizeMax {
		s.RegionSizeMax = other.RegionSizeMax
	}
}
