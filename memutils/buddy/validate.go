package buddy

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
)

type validateFrame struct {
	nodeInfo
	// enclosed is true when an ancestor is allocated or free-and-unsplit, in which case nothing in this
	// subtree may carry a bit
	enclosed bool
}

// Validate performs internal consistency checks on the tree. It walks every node, so it costs
// O(TreeSize()). When the allocator is functioning correctly it should not be possible for this method
// to return an error.
func (r *Region) Validate() error {
	if r.used.Len() != r.treeSize || r.split.Len() != r.treeSize {
		return errors.Errorf("bit vectors hold %d and %d bits but the tree has %d nodes", r.used.Len(), r.split.Len(), r.treeSize)
	}

	// Leaf index to the allocated node covering it
	coverage := swiss.NewMap[int, int](uint32(r.allocCount + 1))
	var allocCount, allocBytes int

	var stack [MaxLevels + 2]validateFrame
	stack[0] = validateFrame{nodeInfo: nodeInfo{index: 0, size: r.totalSize, offset: 0}}
	sp := 1

	for sp > 0 {
		sp--
		frame := stack[sp]
		k := frame.index
		used := r.isUsed(k)
		split := r.isSplit(k)
		leaf := frame.size == r.minSize

		if used && split {
			return errors.Errorf("node %d at offset %d is both allocated and split", k, frame.offset)
		}

		if leaf && split {
			return errors.Errorf("leaf node %d at offset %d is split", k, frame.offset)
		}

		if frame.enclosed && (used || split) {
			return errors.Errorf("node %d at offset %d is marked but lies inside a block that is allocated or untouched", k, frame.offset)
		}

		if used {
			allocCount++
			allocBytes += frame.size

			firstLeaf := frame.offset / r.minSize
			for leafIndex := firstLeaf; leafIndex < firstLeaf+frame.size/r.minSize; leafIndex++ {
				other, taken := coverage.Get(leafIndex)
				if taken {
					return errors.Errorf("minimum block %d is covered by both node %d and node %d", leafIndex, other, k)
				}
				coverage.Put(leafIndex, k)
			}
		}

		if leaf {
			continue
		}

		if split && r.isFreeUnsplit(leftChild(k)) && r.isFreeUnsplit(rightChild(k)) {
			return errors.Errorf("node %d at offset %d is split but both of its children are free", k, frame.offset)
		}

		half := frame.size / 2
		enclosed := frame.enclosed || !split
		stack[sp] = validateFrame{nodeInfo: nodeInfo{index: rightChild(k), size: half, offset: frame.offset + half}, enclosed: enclosed}
		sp++
		stack[sp] = validateFrame{nodeInfo: nodeInfo{index: leftChild(k), size: half, offset: frame.offset}, enclosed: enclosed}
		sp++
	}

	if allocCount != r.allocCount {
		return errors.Errorf("the allocation count of the region is %d, but the tree holds %d allocated nodes", r.allocCount, allocCount)
	}

	if allocBytes != r.allocBytes {
		return errors.Errorf("the region has %d allocated bytes, but the allocated nodes add up to %d", r.allocBytes, allocBytes)
	}

	if coverage.Count() != allocBytes/r.minSize {
		return errors.Errorf("allocated nodes cover %d minimum blocks, but %d bytes are allocated", coverage.Count(), allocBytes)
	}

	return nil
}
