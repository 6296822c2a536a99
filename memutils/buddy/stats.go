package buddy

import (
	"context"
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/buddy/memutils"
	"golang.org/x/exp/slog"
)

// AllocationCount returns the number of live allocations
func (r *Region) AllocationCount() int {
	return r.allocCount
}

// SumFreeSize returns the number of bytes not held by an allocation
func (r *Region) SumFreeSize() int {
	return r.totalSize - r.allocBytes
}

// IsEmpty will return true if this region has no live allocations
func (r *Region) IsEmpty() bool {
	return r.allocCount == 0
}

// FreeRegionsCount returns the number of maximal free buddy blocks. Two free buddies are never counted
// separately, because Free always merges them.
func (r *Region) FreeRegionsCount() int {
	count := 0
	_ = r.VisitAllRegions(func(offset, size int, free bool) error {
		if free {
			count++
		}
		return nil
	})
	return count
}

// VisitAllRegions calls handleBlock once for each allocated block and each maximal free block, in
// address order. Offsets are relative to Base(). Iteration stops at the first error, which is returned.
func (r *Region) VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error {
	var stack [MaxLevels + 2]nodeInfo
	stack[0] = nodeInfo{index: 0, size: r.totalSize, offset: 0}
	sp := 1

	for sp > 0 {
		sp--
		node := stack[sp]

		if r.isUsed(node.index) || !r.isSplit(node.index) {
			err := handleBlock(node.offset, node.size, !r.isUsed(node.index))
			if err != nil {
				return err
			}
			continue
		}

		half := node.size / 2
		stack[sp] = nodeInfo{index: rightChild(node.index), size: half, offset: node.offset + half}
		sp++
		stack[sp] = nodeInfo{index: leftChild(node.index), size: half, offset: node.offset}
		sp++
	}

	return nil
}

// AddStatistics sums this region's counters into stats
func (r *Region) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.AllocationCount += r.allocCount
	stats.RegionBytes += r.totalSize
	stats.AllocationBytes += r.allocBytes
}

// AddDetailedStatistics sums this region's counters and block size distribution into stats
func (r *Region) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += r.totalSize

	_ = r.VisitAllRegions(func(offset, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// BlockJsonData populates a json object with summary information about this region
func (r *Region) BlockJsonData(json *jwriter.ObjectState) {
	json.Name("Base").String(fmt.Sprintf("%#x", r.base))
	json.Name("TotalBytes").Int(r.totalSize)
	json.Name("MinBlockBytes").Int(r.minSize)
	json.Name("UnusedBytes").Int(r.SumFreeSize())
	json.Name("Allocations").Int(r.allocCount)
	json.Name("UnusedRanges").Int(r.FreeRegionsCount())
}

// PrintDetailedMap populates a json object with summary information and a list of every block
func (r *Region) PrintDetailedMap(json *jwriter.ObjectState) {
	r.BlockJsonData(json)

	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = r.VisitAllRegions(func(offset, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String(NodeFree.String())
		} else {
			obj.Name("Type").String(NodeAllocated.String())
		}
		return nil
	})
}

// DebugLogAllAllocations calls logFunc for every live allocation
func (r *Region) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, address uintptr, size int)) {
	_ = r.VisitAllRegions(func(offset, size int, free bool) error {
		if !free {
			logFunc(logger, r.base+uintptr(offset), size)
		}
		return nil
	})
}

// LogAllocations writes every live allocation to logger at the provided level
func (r *Region) LogAllocations(ctx context.Context, logger *slog.Logger, level slog.Level, msg string) {
	r.DebugLogAllAllocations(logger, func(log *slog.Logger, address uintptr, size int) {
		log.LogAttrs(ctx, level, msg,
			slog.String("address", fmt.Sprintf("%#x", address)),
			slog.Int("size", size),
		)
	})
}
