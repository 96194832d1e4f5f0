// Package dtypes includes the DType enum for the element types a SyncData can hold.
//
// Only element types with a fixed byte size are listed. The Supported constraint lists the matching Go types,
// to be used with generics.
package dtypes

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/syncmem/pkg/core/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ErrSizeOverflow is returned by SizeForCount when the size in bytes doesn't fit an int.
var ErrSizeOverflow = errors.New("dtypes: size in bytes overflows int")

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Only works for 32 and 64 bits platforms.
	if strconv.IntSize != 32 && strconv.IntSize != 64 {
		panicf("cannot use int of %d bits -- only platforms with int32 or int64 are supported", strconv.IntSize)
	}

	// Add a mapping to the lower-case version of dtypes.
	for _, key := range slices.Collect(maps.Keys(MapOfNames)) {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; !found {
			MapOfNames[lowerKey] = MapOfNames[key]
		}
	}
}

// FromName returns the DType for the given name (e.g.: "Float32", "f32" or "float32").
func FromName(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found || dtype == InvalidDType {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case int:
		if strconv.IntSize == 32 {
			return Int32
		}
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case bfloat16.BFloat16:
		return BFloat16
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	}
	return InvalidDType
}

// Size returns the number of bytes for one element of the given DType.
// It panics for InvalidDType or unknown values.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16, BFloat16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	}
	panicf("unknown dtype %s in DType.Size", dtype)
	return 0
}

// SizeForCount returns the size in bytes used by count elements of dtype.
//
// It returns an error for a negative count, or an error wrapping ErrSizeOverflow if the size doesn't fit an int.
func (dtype DType) SizeForCount(count int) (int, error) {
	if count < 0 {
		return 0, errors.Errorf("count cannot be negative for %s, got %d", dtype, count)
	}
	size := dtype.Size()
	if count > math.MaxInt/size {
		return 0, errors.Wrapf(ErrSizeOverflow, "%d elements of %s", count, dtype)
	}
	return count * size, nil
}

// Supported lists the Go types that can be used as elements of a SyncData.
// Used as traits for generics.
//
// Notice Go's `int` type is not portable, since it may translate to dtypes Int32 or Int64 depending
// on the platform.
type Supported interface {
	bool | float16.Float16 | bfloat16.BFloat16 |
		float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		complex64 | complex128
}
