package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) & ^(alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	return value & ^(alignment - 1)
}

// IsAligned returns true if value is a multiple of the power-of-two alignment
func IsAligned[T Number](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

// Log2 returns the exponent of a power-of-two value
func Log2(value uint32) uint8 {
	return uint8(bits.TrailingZeros32(value))
}
