package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrExhausted is returned when a fixed-capacity table has no free slot left
	ErrExhausted = errors.New("table exhausted")
	// ErrNotFound is returned when an address range is not contained in any memory pool
	ErrNotFound = errors.New("no memory pool contains the requested range")
	// ErrUnaligned is returned when a region cannot be expressed in fpages of the configured granularity
	ErrUnaligned = errors.New("region is not aligned to the least fpage size")
	// ErrOverlap is returned when an fpage would overlap another fpage of the same address space
	ErrOverlap = errors.New("fpage overlaps an existing fpage")
	// ErrSlotCapacity is returned when an address space holds more always-mapped fpages than there are MPU regions
	ErrSlotCapacity = errors.New("always-mapped fpages exceed the number of MPU regions")
	// ErrInvalidHandle is returned when a handle does not refer to a live object of the expected kind
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrSpaceExists is returned when an address space ID is registered twice
	ErrSpaceExists = errors.New("address space already exists")
	// ErrInvalidConfig is returned when creation options are inconsistent
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrPermission is returned when a pool does not grant the access a caller requires
	ErrPermission = errors.New("memory pool does not grant the required access")
	// ErrNotImplemented is returned by operations that exist only as an extension point
	ErrNotImplemented = errors.New("not implemented")
)
