// Package quantize converts floating-point world coordinates to the
// non-negative integer plane the Morton curve indexes, using the
// per-axis scale/offset pair recorded in a dataset's metadata.
//
// Grounded on the affine scale/offset quantization in
// original_source/pcsfc/point_processor.py's encode_split_points
// (round((x-offset)/scale)), carried into the teacher's idiom: a small
// stateless value type with a pure conversion method, the same shape
// as internal/spatial/types.go's Transform in the teacher pack.
package quantize

import (
	"math"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/rangecurve"
)

// Quantizer holds the three scale/offset pairs used to map a
// dataset's floating-point coordinates into quantized integers, and
// back.
type Quantizer struct {
	ScaleX, ScaleY, ScaleZ   float64
	OffsetX, OffsetY, OffsetZ float64
}

// New validates that all three scales are non-zero (division by a
// zero scale is always a configuration mistake, not a data problem)
// and returns a ready Quantizer.
func New(scales, offsets [3]float64) (*Quantizer, error) {
	if scales[0] == 0 || scales[1] == 0 || scales[2] == 0 {
		return nil, apperr.Config("scales must be non-zero, got %v", scales)
	}
	return &Quantizer{
		ScaleX: scales[0], ScaleY: scales[1], ScaleZ: scales[2],
		OffsetX: offsets[0], OffsetY: offsets[1], OffsetZ: offsets[2],
	}, nil
}

// Point is a quantized point ready for Morton encoding: X and Y are
// non-negative integer plane coordinates, Z is rounded to two
// fractional digits and carried alongside the curve key rather than
// indexed by it.
type Point struct {
	X, Y int64
	Z    float64
}

// Quantize maps one floating-point (x, y, z) into a Point. Returns a
// QuantizationError if the computed X or Y would be negative — the
// curve assumes a non-negative integer plane, so such a point cannot
// be encoded and must be rejected by the caller (incrementing its
// reject counter) rather than aborting the whole ingest.
func (q *Quantizer) Quantize(x, y, z float64) (Point, error) {
	X := int64(math.Round((x - q.OffsetX) / q.ScaleX))
	Y := int64(math.Round((y - q.OffsetY) / q.ScaleY))
	if X < 0 || Y < 0 {
		return Point{}, apperr.Quantization("negative quantized coordinate (X=%d, Y=%d) for point (%g, %g)", X, Y, x, y)
	}
	Z := math.Round(z*100) / 100
	return Point{X: X, Y: Y, Z: Z}, nil
}

// Dequantize is the inverse mapping used when the query engine
// recovers world coordinates from a decoded curve point.
func (q *Quantizer) Dequantize(X, Y int64, Z float64) (x, y, z float64) {
	return float64(X)*q.ScaleX + q.OffsetX, float64(Y)*q.ScaleY + q.OffsetY, Z
}

// QuantizeBoxOutward maps a floating-point query box into quantized
// curve space, rounding outward (floor for the minimum, ceil for the
// maximum) so that no matching point is excluded by rounding, per
// spec.md §4.7.
func (q *Quantizer) QuantizeBoxOutward(xMin, xMax, yMin, yMax float64) rangecurve.Box {
	return rangecurve.Box{
		XMin: int64(math.Floor((xMin - q.OffsetX) / q.ScaleX)),
		XMax: int64(math.Ceil((xMax - q.OffsetX) / q.ScaleX)),
		YMin: int64(math.Floor((yMin - q.OffsetY) / q.ScaleY)),
		YMax: int64(math.Ceil((yMax - q.OffsetY) / q.ScaleY)),
	}
}
