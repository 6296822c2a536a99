// Package buddy implements a buddy-system allocator whose metadata is two bit vectors over an implicit
// binary tree.
//
// Node 0 is the root and represents the whole region. Node k has children 2k+1 and 2k+2 and parent
// (k-1)/2, so every level n occupies the index range [2^n - 1, 2^(n+1) - 2]:
//
//	Level | Indices
//	------|------------------------------------------
//	  0   |  0
//	  1   |  1-2
//	  2   |  3-4 * 5-6
//	  3   |  7-8 * 9-10 * 11-12 * 13-14
//
// Each node carries a used bit, set when its block was handed out whole, and a split bit, set when its
// capacity has been delegated to its children. No node is ever both, a minimum-size leaf is never split,
// and nothing beneath a used node is marked.
package buddy

import (
	"fmt"
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/bitvector"
)

// MaxLevels is the deepest tree a Region supports: TotalSize/MinBlockSize may be at most 2^MaxLevels
const MaxLevels = 62

// RegionCreateInfo describes the geometry and backing storage of a Region
type RegionCreateInfo struct {
	// TotalSize is the size in bytes of the managed region. It must be a power of two.
	TotalSize int
	// MinBlockSize is the smallest block the region will hand out. It must be a power of two no larger
	// than TotalSize.
	MinBlockSize int
	// Base is the address of the first byte of the region. It must be aligned to TotalSize so that every
	// block is aligned to its own size.
	Base uintptr

	// Used and Split are optional caller-owned storage for the two bit vectors. Each must hold at least
	// TreeWords(TotalSize, MinBlockSize) words. When nil, the region allocates its own storage. Storage
	// passed here belongs to the region until it is discarded and must not be modified by the caller.
	Used  []uint64
	Split []uint64
}

// TreeWords returns the number of 64-bit words each bit vector needs for a region of the given geometry
func TreeWords(totalSize, minBlockSize int) int {
	if minBlockSize < 1 || totalSize < minBlockSize {
		return 0
	}
	return bitvector.WordCount(2*(totalSize/minBlockSize) - 1)
}

// Region is one buddy-managed memory pool. It holds no pointers to its blocks: every node is a position
// in the used and split bit vectors. A Region is not safe for concurrent use.
type Region struct {
	totalSize int
	minSize   int
	mapSize   int
	treeSize  int
	levels    int
	base      uintptr

	used  *bitvector.BitVector
	split *bitvector.BitVector

	allocCount int
	allocBytes int
}

var _ memutils.Validatable = &Region{}

// NewRegion validates the provided geometry and binds the region to its storage. The returned region is
// already initialized: every block is free.
func NewRegion(info RegionCreateInfo) (*Region, error) {
	err := memutils.CheckPow2(info.MinBlockSize, "MinBlockSize")
	if err != nil {
		return nil, err
	}

	err = memutils.CheckPow2(info.TotalSize, "TotalSize")
	if err != nil {
		return nil, err
	}

	if info.TotalSize < info.MinBlockSize {
		return nil, cerrors.Wrapf(memutils.InvalidConfigurationError, "TotalSize %d is smaller than MinBlockSize %d", info.TotalSize, info.MinBlockSize)
	}

	mapSize := info.TotalSize / info.MinBlockSize
	levels := memutils.Log2(mapSize)
	if levels > MaxLevels {
		return nil, cerrors.Wrapf(memutils.InvalidConfigurationError, "a region of %d minimum blocks needs %d tree levels, but at most %d are supported", mapSize, levels, MaxLevels)
	}

	if info.Base%uintptr(info.TotalSize) != 0 {
		return nil, cerrors.Wrapf(memutils.InvalidConfigurationError, "base address %#x is not aligned to the region size %d", info.Base, info.TotalSize)
	}

	if info.Base+uintptr(info.TotalSize)-1 < info.Base {
		return nil, cerrors.Wrapf(memutils.InvalidConfigurationError, "region at %#x of %d bytes overflows the address space", info.Base, info.TotalSize)
	}

	treeSize := 2*mapSize - 1
	used, err := bindVector(info.Used, treeSize, "Used")
	if err != nil {
		return nil, err
	}

	split, err := bindVector(info.Split, treeSize, "Split")
	if err != nil {
		return nil, err
	}

	r := &Region{
		totalSize: info.TotalSize,
		minSize:   info.MinBlockSize,
		mapSize:   mapSize,
		treeSize:  treeSize,
		levels:    levels,
		base:      info.Base,
		used:      used,
		split:     split,
	}
	r.Init()

	return r, nil
}

func bindVector(storage []uint64, treeSize int, name string) (*bitvector.BitVector, error) {
	var v *bitvector.BitVector
	var err error
	if storage == nil {
		v, err = bitvector.New(treeSize)
	} else {
		v, err = bitvector.Wrap(storage, treeSize)
	}
	if err != nil {
		return nil, cerrors.Wrapf(memutils.InvalidConfigurationError, "%s storage: %v", name, err)
	}
	return v, nil
}

// Init clears both bit vectors, returning every block to the free state
func (r *Region) Init() {
	must(r.used.ClearAll(r.treeSize))
	must(r.split.ClearAll(r.treeSize))
	r.allocCount = 0
	r.allocBytes = 0
}

// Clear instantly frees all allocations
func (r *Region) Clear() {
	r.Init()
}

// Size returns the size in bytes of the whole region
func (r *Region) Size() int { return r.totalSize }

// MinBlockSize returns the size in bytes of the smallest block
func (r *Region) MinBlockSize() int { return r.minSize }

// MapSize returns the number of minimum-size blocks in the region
func (r *Region) MapSize() int { return r.mapSize }

// TreeSize returns the number of nodes in the tree
func (r *Region) TreeSize() int { return r.treeSize }

// Levels returns the depth of the leaves: the root is level 0 and the leaves are level Levels()
func (r *Region) Levels() int { return r.levels }

// Base returns the address of the first byte of the region
func (r *Region) Base() uintptr { return r.base }

// Words returns copies of the used and split bit vector words
func (r *Region) Words() (used []uint64, split []uint64) {
	return r.used.Words(), r.split.Words()
}

// BlockSize returns the size of the block an allocation of size bytes occupies
func (r *Region) BlockSize(size int) int {
	if size < r.minSize {
		return r.minSize
	}

	blockSize := memutils.NextPow2(size)
	memutils.DebugCheckPow2(blockSize, "block size")
	return blockSize
}

// NodeState identifies which of the three node states a tree node is in
type NodeState uint32

const (
	// NodeFree is a node that is unallocated and whose subtree is untouched
	NodeFree NodeState = iota
	// NodeAllocated is a node whose whole block was handed out by one allocation
	NodeAllocated
	// NodeDivided is a node whose capacity lives in its two children
	NodeDivided
	// NodeCorrupt is a node with both bits set, which Validate reports as an error
	NodeCorrupt
)

var nodeStateMapping = map[NodeState]string{
	NodeFree:      "Free",
	NodeAllocated: "Allocated",
	NodeDivided:   "Divided",
	NodeCorrupt:   "Corrupt",
}

func (s NodeState) String() string {
	return nodeStateMapping[s]
}

// NodeInfo is a read-only view of one tree node
type NodeInfo struct {
	Index  int
	Level  int
	Offset int
	Size   int
	Used   bool
	Split  bool
}

// State derives the node state from its two bits
func (n NodeInfo) State() NodeState {
	switch {
	case n.Used && n.Split:
		return NodeCorrupt
	case n.Used:
		return NodeAllocated
	case n.Split:
		return NodeDivided
	default:
		return NodeFree
	}
}

// Node returns the geometry and bits of node k
func (r *Region) Node(k int) (NodeInfo, error) {
	if k < 0 || k >= r.treeSize {
		return NodeInfo{}, cerrors.Wrapf(memutils.OutOfRangeError, "node %d is outside a tree of %d nodes", k, r.treeSize)
	}

	n := r.node(k)
	return NodeInfo{
		Index:  k,
		Level:  levelOf(k),
		Offset: n.offset,
		Size:   n.size,
		Used:   r.isUsed(k),
		Split:  r.isSplit(k),
	}, nil
}

// nodeInfo is a work-stack entry: a tree index with the size and region offset of its block
type nodeInfo struct {
	index  int
	size   int
	offset int
}

func (r *Region) node(k int) nodeInfo {
	level := levelOf(k)
	size := r.totalSize >> level
	return nodeInfo{
		index:  k,
		size:   size,
		offset: (k - firstIndexOf(level)) * size,
	}
}

func levelOf(k int) int {
	return bits.Len(uint(k+1)) - 1
}

func firstIndexOf(level int) int {
	return (1 << level) - 1
}

func parent(k int) int {
	return (k - 1) / 2
}

func leftChild(k int) int {
	return 2*k + 1
}

func rightChild(k int) int {
	return 2*k + 2
}

// Left children have odd indices and right children even ones
func sibling(k int) int {
	if k&1 == 1 {
		return k + 1
	}
	return k - 1
}

func (r *Region) leafIndex(offset int) int {
	return r.mapSize + offset/r.minSize - 1
}

func (r *Region) isUsed(k int) bool {
	return test(r.used, k)
}

func (r *Region) isSplit(k int) bool {
	return test(r.split, k)
}

func (r *Region) isFreeUnsplit(k int) bool {
	return !r.isUsed(k) && !r.isSplit(k)
}

func (r *Region) setUsed(k int) { must(r.used.Set(k)) }

func (r *Region) clearUsed(k int) { must(r.used.Clear(k)) }

func (r *Region) setSplit(k int) { must(r.split.Set(k)) }

func (r *Region) clearSplit(k int) { must(r.split.Clear(k)) }

// Tree indices are derived from validated geometry, so a bit vector range error here means the region's
// own arithmetic is broken
func test(v *bitvector.BitVector, k int) bool {
	set, err := v.Test(k)
	must(err)
	return set
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("buddy tree index escaped its bit vector: %+v", err))
	}
}
