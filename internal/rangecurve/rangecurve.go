// Package rangecurve derives the set of sfc_head prefix ranges and
// loose overlapping prefixes that a query bounding box touches, by
// descending the implicit quadtree that the Morton key encodes (one
// bit from each axis per level), and the matching finer descent used
// to turn a tail-range query back into concrete tail values once a
// candidate block's sfc_head is known to only partially overlap the
// box.
//
// Grounded on the teacher's worklist-over-a-stack traversal style used
// in the LAS point reader's chunked iteration (internal/lidar/readers.go)
// generalized here to the quadtree descent named in spec.md §4.5. The
// descent in this package walks one key bit at a time rather than one
// quadrant (two bits) at a time; this is equivalent in the cells it
// produces at any given depth — splitting a rectangle by its x
// midpoint and then by its y midpoint yields the same four quadrants
// regardless of order — but it also stays correct when a dataset's
// representative key has an odd bit length, so tail_len need not be
// even the way head_len is (see morton.HeadLen).
package rangecurve

import (
	"sort"

	"github.com/sfcdb/sfcdb/internal/morton"
)

// Box is an axis-aligned bounding box in quantized integer coordinates
// (inclusive on both ends), the space the Morton curve indexes.
type Box struct {
	XMin, XMax, YMin, YMax int64
}

// Range is an inclusive [Lo, Hi] range of sfc_head (or, from
// DeriveTail, sfc_tail) values.
type Range struct {
	Lo, Hi uint64
}

// cell is one node of the implicit quadtree: prefix holds the top
// bits bits of a key restricted to this traversal, counted from
// whichever startBits the descent began at.
type cell struct {
	prefix uint64
	bits   int
}

// clampAxis restricts a coordinate to the representable plane
// [0, 2^31).
func clampAxis(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > morton.MaxCoord {
		return morton.MaxCoord
	}
	return v
}

func clamp(b Box) Box {
	return Box{
		XMin: clampAxis(b.XMin),
		XMax: clampAxis(b.XMax),
		YMin: clampAxis(b.YMin),
		YMax: clampAxis(b.YMax),
	}
}

// cellBounds computes the axis-aligned rectangle named by a prefix of
// the given depth within a key space totalBits wide. The free (not
// yet fixed) bits are split between axes by their interleaved
// position: ceil(shift/2) belong to x, floor(shift/2) to y.
func cellBounds(c cell, totalBits int) Box {
	shift := uint(totalBits - c.bits)
	top := c.prefix << shift
	ox, oy := morton.Decode(top)

	xBits := (shift + 1) / 2
	yBits := shift / 2
	sideX := int64(1) << xBits
	sideY := int64(1) << yBits

	return Box{XMin: ox, XMax: ox + sideX - 1, YMin: oy, YMax: oy + sideY - 1}
}

func disjoint(box, cell Box) bool {
	return cell.XMax < box.XMin || cell.XMin > box.XMax ||
		cell.YMax < box.YMin || cell.YMin > box.YMax
}

func contained(box, cell Box) bool {
	return box.XMin <= cell.XMin && cell.XMax <= box.XMax &&
		box.YMin <= cell.YMin && cell.YMax <= box.YMax
}

// descend walks the quadtree from start down to depth targetLen
// within a totalBits-wide key space, classifying every node reached
// against box: pruned if disjoint, emitted whole (scaled up to
// targetLen width) if fully contained, recorded as a loose overlap if
// only partially covered at targetLen, otherwise split into two
// one-bit-deeper children and revisited.
func descend(box Box, start cell, targetLen, totalBits int) (ranges []Range, overlaps []uint64) {
	stack := []cell{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cb := cellBounds(cur, totalBits)
		if disjoint(box, cb) {
			continue
		}

		if contained(box, cb) {
			if cur.bits == targetLen {
				ranges = append(ranges, Range{cur.prefix, cur.prefix})
			} else {
				shift := uint(targetLen - cur.bits)
				lo := cur.prefix << shift
				hi := ((cur.prefix + 1) << shift) - 1
				ranges = append(ranges, Range{lo, hi})
			}
			continue
		}

		if cur.bits == targetLen {
			overlaps = append(overlaps, cur.prefix)
			continue
		}

		stack = append(stack,
			cell{prefix: cur.prefix << 1, bits: cur.bits + 1},
			cell{prefix: cur.prefix<<1 | 1, bits: cur.bits + 1},
		)
	}

	mergeRanges(&ranges)
	return ranges, overlaps
}

func mergeRanges(ranges *[]Range) {
	rs := *ranges
	if len(rs) < 2 {
		return
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Lo < rs[j].Lo })

	merged := rs[:1]
	for _, r := range rs[1:] {
		last := &merged[len(merged)-1]
		if r.Lo <= last.Hi+1 {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		merged = append(merged, r)
	}
	*ranges = merged
}

// Derive computes the sfc_head ranges fully covered by box and the
// sfc_head prefixes it only partially overlaps, for a dataset split
// at headLen/tailLen bits. An empty or inverted box (after clamping to
// the representable plane) yields no ranges and no overlaps. A box
// covering the whole plane yields a single range spanning every head
// value.
func Derive(box Box, headLen, tailLen int) (ranges []Range, overlaps []uint64) {
	box = clamp(box)
	if box.XMin > box.XMax || box.YMin > box.YMax {
		return nil, nil
	}
	totalBits := headLen + tailLen
	return descend(box, cell{prefix: 0, bits: 0}, headLen, totalBits)
}

// DeriveTail runs the same descent within the single sfc_head cell
// head, from depth headLen down to the full key depth headLen+tailLen,
// and rebases the result to tail-only values (subtracting head's
// contribution) so the caller can filter a block's stored sfc_tail
// array directly.
func DeriveTail(box Box, head uint64, headLen, tailLen int) (tailRanges []Range, tailOverlaps []uint64) {
	box = clamp(box)
	if box.XMin > box.XMax || box.YMin > box.YMax {
		return nil, nil
	}
	totalBits := headLen + tailLen
	ranges, overlaps := descend(box, cell{prefix: head, bits: headLen}, totalBits, totalBits)

	offset := head << uint(tailLen)
	for _, r := range ranges {
		tailRanges = append(tailRanges, Range{r.Lo - offset, r.Hi - offset})
	}
	for _, o := range overlaps {
		tailOverlaps = append(tailOverlaps, o-offset)
	}
	return tailRanges, tailOverlaps
}

// Contains reports whether key falls within a tail range or prefix
// list already filtered to the block being scanned. It is a small
// convenience used by the query engine's client-side tail filter.
func (r Range) Contains(key uint64) bool {
	return key >= r.Lo && key <= r.Hi
}
