package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// InvalidConfigurationError is returned when a region is described with geometry or storage that cannot
// back a buddy tree
var InvalidConfigurationError error = errors.New("invalid region configuration")

// OutOfRangeError is returned when a bit or tree node index falls outside the capacity it was sized for
var OutOfRangeError error = errors.New("index out of range")

// RegionNotConfiguredError is returned when an operation names a region identifier that is outside the
// supported range or has not been configured
var RegionNotConfiguredError error = errors.New("region is not configured")

// InvalidSizeError is returned when an allocation is requested for fewer than one byte
var InvalidSizeError error = errors.New("allocation size must be positive")

// RequestTooLargeError is returned when an allocation is larger than the whole region
var RequestTooLargeError error = errors.New("requested size exceeds the region size")

// RegionExhaustedError is returned when no free block in the region can hold the requested size
var RegionExhaustedError error = errors.New("no free block can satisfy the request")

// InvalidFreeAddressError is returned when a free is requested for an address that is misaligned, outside
// the region, or does not belong to a live allocation
var InvalidFreeAddressError error = errors.New("address does not refer to a live allocation")
