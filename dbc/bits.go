package dbc

import "math"

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampUnsigned saturates a rounded raw value into [0, 2^bitSize-1]. The
// comparisons happen in float64 so out of range values never reach an
// integer conversion.
func clampUnsigned(r float64, bitSize uint64) uint64 {
	max := valueMask(bitSize)
	if math.IsNaN(r) || r <= 0 {
		return 0
	}
	// float64(max) rounds up to 2^bitSize for wide fields
	if r >= float64(max) {
		return max
	}
	return uint64(r)
}

// clampSigned saturates a rounded raw value into the two's complement range
// of a bitSize wide field.
func clampSigned(r float64, bitSize uint64) int64 {
	if math.IsNaN(r) {
		return 0
	}
	min := -math.Ldexp(1, int(bitSize-1))
	max := math.Ldexp(1, int(bitSize-1)) - 1
	if r <= min {
		return int64(min)
	}
	if r >= max {
		if bitSize == 64 {
			return math.MaxInt64
		}
		return int64(max)
	}
	return int64(r)
}
