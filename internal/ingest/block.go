// Package ingest implements the block builder (C4) and the ingest
// pipeline (C5): grouping encoded points into prefix-keyed blocks and
// driving a LAS file or directory through quantization, Morton
// encoding, and block construction.
//
// Grounded on original_source/pcsfc/encoder.py's make_groups (sort by
// head then tail, group consecutive equal heads) and
// original_source/pcsfc/point_processor.py's PointProcessor, carried
// into the teacher's idiom of a small value-returning function over a
// slice rather than the source's pandas DataFrame groupby.
package ingest

import "sort"

// EncodedPoint is one point after quantization and Morton encoding,
// ready to be grouped into a Block.
type EncodedPoint struct {
	Head uint64
	Tail uint64
	Z    float64
}

// Block is one storage row: every point sharing Head, with Tails and
// Zs as equal-length parallel arrays, Tails sorted ascending.
type Block struct {
	Head  uint64
	Tails []uint64
	Zs    []float64
}

// BlockSizeStats summarizes the distribution of points per block,
// surfaced to the caller to help tune a dataset's ratio (a small
// head_len packs many points per block; a large one spreads them
// thin). Grounded on the commented-out histogram in
// original_source/pcsfc/point_processor.py, implemented here for real.
type BlockSizeStats struct {
	Blocks       int
	MinPoints    int
	MaxPoints    int
	TotalPoints  int
	MeanPoints   float64
}

// BuildBlocks sorts points by (Head, Tail) and groups consecutive
// equal heads into blocks. The sort is stable so that points sharing
// both a head and a tail (duplicate quantized coordinates) keep their
// original relative order, leaving the tail-to-z pairing unambiguous.
func BuildBlocks(points []EncodedPoint) ([]Block, BlockSizeStats) {
	if len(points) == 0 {
		return nil, BlockSizeStats{}
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Head != points[j].Head {
			return points[i].Head < points[j].Head
		}
		return points[i].Tail < points[j].Tail
	})

	var blocks []Block
	stats := BlockSizeStats{MinPoints: len(points) + 1}

	start := 0
	for i := 1; i <= len(points); i++ {
		if i < len(points) && points[i].Head == points[start].Head {
			continue
		}

		group := points[start:i]
		block := Block{Head: group[0].Head, Tails: make([]uint64, len(group)), Zs: make([]float64, len(group))}
		for j, p := range group {
			block.Tails[j] = p.Tail
			block.Zs[j] = p.Z
		}
		blocks = append(blocks, block)

		n := len(group)
		stats.Blocks++
		stats.TotalPoints += n
		if n < stats.MinPoints {
			stats.MinPoints = n
		}
		if n > stats.MaxPoints {
			stats.MaxPoints = n
		}

		start = i
	}

	if stats.Blocks > 0 {
		stats.MeanPoints = float64(stats.TotalPoints) / float64(stats.Blocks)
	}
	return blocks, stats
}
