package integrity

import "math"

// Float32Bits returns the IEEE 754 bit pattern of v.
// Bit reinterpretation of calibration values is confined to this package;
// callers never cast floats themselves.
func Float32Bits(v float32) uint32 {
	return math.Float32bits(v)
}

// Float32FromBits returns the float32 carrying the bit pattern bits.
func Float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

// Float32Inverse returns the value whose bit pattern is the bitwise
// complement of v. Stored alongside the primary value, it detects
// single-bit and stuck-at memory corruption on either copy.
func Float32Inverse(v float32) float32 {
	return math.Float32frombits(^math.Float32bits(v))
}

// Float32Redundant reports whether inv is an intact inverted copy of v:
// bits(v) == ^bits(inv). The comparison is exact and bitwise; NaN payloads
// are significant.
func Float32Redundant(v, inv float32) bool {
	return math.Float32bits(v) == ^math.Float32bits(inv)
}

// Word32Redundant reports whether inv is an intact inverted copy of the
// 32-bit word v.
func Word32Redundant(v, inv uint32) bool {
	return v == ^inv
}
