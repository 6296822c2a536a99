package buddy

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

// Free releases the allocation that Alloc returned at address and merges free buddies back into their
// parents. It returns the size of the released block.
//
// The address must be exactly one that Alloc returned and that has not been freed since. Anything else,
// including a second free of the same address, fails with memutils.InvalidFreeAddressError and leaves
// the region untouched.
func (r *Region) Free(address uintptr) (int, error) {
	if address < r.base || address-r.base >= uintptr(r.totalSize) {
		return 0, cerrors.Wrapf(memutils.InvalidFreeAddressError, "address %#x is outside the region [%#x, %#x)", address, r.base, r.base+uintptr(r.totalSize))
	}

	offset := int(address - r.base)
	if memutils.AlignDown(offset, uint(r.minSize)) != offset {
		return 0, cerrors.Wrapf(memutils.InvalidFreeAddressError, "address %#x is not aligned to the minimum block size %d", address, r.minSize)
	}

	// The allocation may have been made anywhere on the path from this leaf to the root
	leaf := r.leafIndex(offset)
	owner := leaf
	for !r.isUsed(owner) {
		if owner == 0 {
			return 0, cerrors.Wrapf(memutils.InvalidFreeAddressError, "there is no live allocation at %#x", address)
		}
		owner = parent(owner)
	}

	block := r.node(owner)
	if block.offset != offset {
		return 0, cerrors.Wrapf(memutils.InvalidFreeAddressError, "address %#x is inside the %d-byte allocation at %#x", address, block.size, r.base+uintptr(block.offset))
	}

	r.clearUsed(leaf)
	r.clearSplit(leaf)
	r.clearUsed(owner)
	r.clearSplit(owner)
	r.allocCount--
	r.allocBytes -= block.size

	// Fold buddy pairs back into their parent while both halves are untouched
	for k := owner; k > 0; k = parent(k) {
		if !r.isFreeUnsplit(k) || !r.isFreeUnsplit(sibling(k)) {
			break
		}
		r.clearSplit(parent(k))
	}

	memutils.DebugValidate(r)
	return block.size, nil
}
