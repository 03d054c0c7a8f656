package common

import "honnef.co/go/safeish"

// CeilDiv divides n by d rounding up. A zero divisor yields zero so callers can treat
// an unset workgroup axis as "nothing to dispatch" instead of faulting.
//
// Parameters:
//   - n: the dividend, typically a resource extent along one axis
//   - d: the divisor, typically the workgroup size along the same axis
//
// Returns:
//   - uint32: ceil(n / d), or 0 when d is 0
func CeilDiv(n, d uint32) uint32 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// AlignUp rounds value up to the next multiple of alignment.
// Alignment must be a power of two; an alignment of 0 returns value unchanged.
//
// Parameters:
//   - value: the value to align
//   - alignment: the required alignment
//
// Returns:
//   - uint64: value rounded up to a multiple of alignment
func AlignUp(value, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// SliceToBytes reinterprets a slice of plain values as raw bytes for GPU buffer uploads.
// The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any fixed-size element type
//
// Returns:
//   - []byte: byte view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return safeish.SliceCast[[]byte](data)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	return safeish.AsBytes(v)
}
