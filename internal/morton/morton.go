// Package morton implements the 2D Morton (Z-order) codec: bit
// interleaving of two non-negative 31-bit integers into a 64-bit key,
// its inverse, and the head/tail prefix split used to group points
// sharing a space-filling-curve prefix into one storage block.
//
// Grounded on the bit-twiddling shape of the teacher's LAS point
// decode path (internal/lidar/readers.go, readHeader/readPoints use
// the same divide-and-conquer style over fixed-width integer fields)
// generalized here to the magic-constant interleave/deinterleave used
// by the pcsfc.encoder.Expand2D algorithm named in spec.md §4.1.
package morton

import (
	"math/bits"

	"github.com/sfcdb/sfcdb/internal/apperr"
)

// MaxCoord is the largest coordinate value representable per axis: 31
// bits, non-negative (bit 31 is never used so the value fits a signed
// 32-bit integer column).
const MaxCoord = 1<<31 - 1

// Encode interleaves the bits of x and y into a 64-bit Morton key, x
// in even bit positions (bit 0 from x) and y in odd positions. Returns
// a DomainError if either coordinate is negative or exceeds 31 bits.
func Encode(x, y int64) (uint64, error) {
	if x < 0 || x > MaxCoord {
		return 0, apperr.Domain("x coordinate %d out of range [0, %d]", x, MaxCoord)
	}
	if y < 0 || y > MaxCoord {
		return 0, apperr.Domain("y coordinate %d out of range [0, %d]", y, MaxCoord)
	}
	return expand(uint64(x)) | (expand(uint64(y)) << 1), nil
}

// expand spreads the low 31 bits of n so that each occupies an even
// bit position, inserting a zero between every pair of bits.
func expand(n uint64) uint64 {
	b := n & 0x7fffffff
	b = (b ^ (b << 16)) & 0x0000ffff0000ffff
	b = (b ^ (b << 8)) & 0x00ff00ff00ff00ff
	b = (b ^ (b << 4)) & 0x0f0f0f0f0f0f0f0f
	b = (b ^ (b << 2)) & 0x3333333333333333
	b = (b ^ (b << 1)) & 0x5555555555555555
	return b
}

// compact is the inverse of expand: it gathers the bits at even
// positions back into a contiguous 31-bit value.
func compact(b uint64) uint64 {
	b &= 0x5555555555555555
	b = (b ^ (b >> 1)) & 0x3333333333333333
	b = (b ^ (b >> 2)) & 0x0f0f0f0f0f0f0f0f
	b = (b ^ (b >> 4)) & 0x00ff00ff00ff00ff
	b = (b ^ (b >> 8)) & 0x0000ffff0000ffff
	b = (b ^ (b >> 16)) & 0x7fffffff
	return b
}

// Decode splits a 64-bit Morton key back into its x and y coordinates.
// Total over the full uint64 domain: bits 62 and 63 (which would be
// bit 31 of x and of y) are ignored, so only the low 62 bits decode.
func Decode(key uint64) (x, y int64) {
	return int64(compact(key)), int64(compact(key >> 1))
}

// Split divides key into a head (high bits) and tail (low tailLen
// bits): head = key >> tailLen, tail = key - (head << tailLen).
func Split(key uint64, tailLen uint) (head, tail uint64) {
	head = key >> tailLen
	tail = key - (head << tailLen)
	return head, tail
}

// Join is the inverse of Split: Join(Split(key, n), n) == key.
func Join(head, tail uint64, tailLen uint) uint64 {
	return (head << tailLen) | tail
}

// BitLength returns the number of bits needed to represent key, i.e.
// the position of its highest set bit plus one. BitLength(0) == 0.
func BitLength(key uint64) int {
	return bits.Len64(key)
}

// HeadLen computes the head/tail bit split for a dataset from its
// representative maximum quantized point and a ratio in (0, 1), per
// spec.md §4.3: headLen is floor(ratio * keyBitLength) rounded down to
// an even number (each curve level consumes one bit from each axis),
// tailLen is the remainder. Returns an apperr.CodeConfig error if the
// resulting headLen would exceed 31 (the sfc_head column is a 32-bit
// signed integer, so spec.md §9 requires this check at ingest time).
func HeadLen(xRep, yRep int64, ratio float64) (headLen, tailLen int, err error) {
	key, encErr := Encode(xRep, yRep)
	if encErr != nil {
		return 0, 0, encErr
	}

	length := BitLength(key)
	headLen = int(float64(length) * ratio)
	if headLen%2 != 0 {
		headLen--
	}
	if headLen < 0 {
		headLen = 0
	}
	tailLen = length - headLen

	if headLen > 31 {
		return 0, 0, apperr.Config("head_len %d exceeds the 31-bit sfc_head column width (ratio=%.3f, key_bitlength=%d)", headLen, ratio, length)
	}
	return headLen, tailLen, nil
}
