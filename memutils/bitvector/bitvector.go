// Package bitvector provides a fixed-capacity bit array backed by 64-bit words. Bit i lives in
// word i/64 at position i%64, counting from the least significant bit.
package bitvector

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

const wordBits = 64

// MaxOwnedBits is the largest capacity New will allocate storage for. Larger vectors must be built
// with Wrap over caller storage.
const MaxOwnedBits = 1 << 48

// WordCount returns the number of words needed to hold n bits. It does not overflow for any n.
func WordCount(n int) int {
	count := n / wordBits
	if n%wordBits != 0 {
		count++
	}
	return count
}

// BitVector is a fixed-capacity bit array. Its capacity is set at construction and never changes.
// It is not safe for concurrent use.
type BitVector struct {
	words    []uint64
	capacity int
}

// New creates a BitVector able to hold n bits, with all bits clear
func New(n int) (*BitVector, error) {
	if n < 0 {
		return nil, cerrors.Wrapf(memutils.OutOfRangeError, "bit vector capacity %d is negative", n)
	}
	if n > MaxOwnedBits {
		return nil, cerrors.Wrapf(memutils.OutOfRangeError, "bit vector capacity %d is above the %d bits New can allocate", n, MaxOwnedBits)
	}

	return &BitVector{
		words:    make([]uint64, WordCount(n)),
		capacity: n,
	}, nil
}

// Wrap creates a BitVector of capacity n over caller-owned words. The words are used in place and are
// not cleared; the caller must not modify them while the BitVector is in use.
func Wrap(words []uint64, n int) (*BitVector, error) {
	if n < 0 {
		return nil, cerrors.Wrapf(memutils.OutOfRangeError, "bit vector capacity %d is negative", n)
	}
	if len(words) < WordCount(n) {
		return nil, cerrors.Wrapf(memutils.OutOfRangeError, "%d words cannot hold %d bits, %d are needed", len(words), n, WordCount(n))
	}

	return &BitVector{
		words:    words[:WordCount(n)],
		capacity: n,
	}, nil
}

// Len returns the capacity of the vector in bits
func (v *BitVector) Len() int { return v.capacity }

func (v *BitVector) checkIndex(i int) error {
	if i < 0 || i >= v.capacity {
		return cerrors.Wrapf(memutils.OutOfRangeError, "bit %d is outside a vector of %d bits", i, v.capacity)
	}
	return nil
}

func (v *BitVector) checkCount(n int) error {
	if n < 0 || n > v.capacity {
		return cerrors.Wrapf(memutils.OutOfRangeError, "bit count %d is outside a vector of %d bits", n, v.capacity)
	}
	return nil
}

// Set sets bit i
func (v *BitVector) Set(i int) error {
	if err := v.checkIndex(i); err != nil {
		return err
	}
	v.words[i/wordBits] |= 1 << (uint(i) % wordBits)
	return nil
}

// Clear clears bit i
func (v *BitVector) Clear(i int) error {
	if err := v.checkIndex(i); err != nil {
		return err
	}
	v.words[i/wordBits] &^= 1 << (uint(i) % wordBits)
	return nil
}

// Test reports whether bit i is set
func (v *BitVector) Test(i int) (bool, error) {
	if err := v.checkIndex(i); err != nil {
		return false, err
	}
	return (v.words[i/wordBits]>>(uint(i)%wordBits))&1 != 0, nil
}

// ClearAll clears bits [0, n). Bits at n and above are untouched.
func (v *BitVector) ClearAll(n int) error {
	if err := v.checkCount(n); err != nil {
		return err
	}

	full := n / wordBits
	for i := 0; i < full; i++ {
		v.words[i] = 0
	}

	// Partial trailing word
	if rem := uint(n) % wordBits; rem != 0 {
		v.words[full] &^= (uint64(1) << rem) - 1
	}
	return nil
}

// SetAll sets bits [0, n). Bits at n and above are untouched.
func (v *BitVector) SetAll(n int) error {
	if err := v.checkCount(n); err != nil {
		return err
	}

	full := n / wordBits
	for i := 0; i < full; i++ {
		v.words[i] = ^uint64(0)
	}

	if rem := uint(n) % wordBits; rem != 0 {
		v.words[full] |= (uint64(1) << rem) - 1
	}
	return nil
}

// Count returns the number of set bits below the capacity
func (v *BitVector) Count() int {
	count := 0
	full := v.capacity / wordBits
	for i := 0; i < full; i++ {
		count += bits.OnesCount64(v.words[i])
	}

	if rem := uint(v.capacity) % wordBits; rem != 0 {
		count += bits.OnesCount64(v.words[full] & ((uint64(1) << rem) - 1))
	}
	return count
}

// Words returns a copy of the backing words
func (v *BitVector) Words() []uint64 {
	words := make([]uint64, len(v.words))
	copy(words, v.words)
	return words
}
