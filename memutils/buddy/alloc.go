package buddy

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

// Alloc hands out the leftmost free block that can hold size bytes and returns its address. The block is
// the smallest power of two no smaller than max(size, MinBlockSize).
//
// The tree is searched depth-first with a fixed work-stack: each step pops one node and pushes at most
// its two children, so the stack never holds more than Levels()+1 entries. A failed allocation leaves
// the region untouched.
func (r *Region) Alloc(size int) (uintptr, error) {
	if size < 1 {
		return 0, cerrors.Wrapf(memutils.InvalidSizeError, "requested %d bytes", size)
	}

	if size > r.totalSize {
		return 0, cerrors.Wrapf(memutils.RequestTooLargeError, "requested %d bytes from a region of %d bytes", size, r.totalSize)
	}

	if r.isUsed(0) {
		return 0, cerrors.Wrapf(memutils.RegionExhaustedError, "the whole region at %#x is allocated", r.base)
	}

	var stack [MaxLevels + 2]nodeInfo
	stack[0] = nodeInfo{index: 0, size: r.totalSize, offset: 0}
	sp := 1

	for sp > 0 {
		sp--
		node := stack[sp]

		if r.isUsed(node.index) {
			continue
		}

		// Neither half could hold the request, or the block cannot be divided
		if size > node.size/2 || node.size == r.minSize {
			if !r.isSplit(node.index) {
				r.setUsed(node.index)
				r.allocCount++
				r.allocBytes += node.size

				memutils.DebugValidate(r)
				return r.base + uintptr(node.offset), nil
			}

			// Part of this block is already handed out
		}

		if node.size == r.minSize {
			continue
		}

		half := node.size / 2
		if size > half {
			continue
		}

		// An unsplit free node always has room in its left child, so this never marks a path
		// that ends in failure
		r.setSplit(node.index)

		// Left must be on top of the stack
		stack[sp] = nodeInfo{index: rightChild(node.index), size: half, offset: node.offset + half}
		sp++
		stack[sp] = nodeInfo{index: leftChild(node.index), size: half, offset: node.offset}
		sp++
	}

	return 0, cerrors.Wrapf(memutils.RegionExhaustedError, "no free block of %d bytes in the region at %#x", r.BlockSize(size), r.base)
}
