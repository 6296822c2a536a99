package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// NextPow2 returns the smallest power of two that is greater than or equal to value. Values below 1
// return 1.
func NextPow2(value int) int {
	if value <= 1 {
		return 1
	}
	return 1 << (bits.UintSize - bits.LeadingZeros(uint(value-1)))
}

// Log2 returns the base-2 logarithm of a power of two
func Log2(value int) int {
	return bits.TrailingZeros(uint(value))
}
