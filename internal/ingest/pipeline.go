package ingest

import (
	"math"
	"os"
	"path/filepath"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/lasfile"
	"github.com/sfcdb/sfcdb/internal/logger"
	"github.com/sfcdb/sfcdb/internal/morton"
	"github.com/sfcdb/sfcdb/internal/quantize"
)

// CoordSource selects which of a LAS chunk's coordinate pair an
// ingest reads: the file's scaled world coordinates (the normal
// path), or its raw integer storage coordinates treated directly as
// the quantized plane coordinates ("full resolution" mode, spec.md
// §6.1/§9).
type CoordSource int

const (
	CoordSourceScaled CoordSource = iota
	CoordSourceRaw
)

// DefaultChunkSize bounds memory residency per spec.md §4.4; only
// files larger than this are read in more than one chunk.
const DefaultChunkSize = 500_000_000

// BBox is the original-coordinate axis-aligned bounding box recorded
// in a dataset's metadata.
type BBox struct {
	XMin, XMax, YMin, YMax, ZMin, ZMax float64
}

func emptyBBox() BBox {
	return BBox{XMin: math.Inf(1), XMax: math.Inf(-1), YMin: math.Inf(1), YMax: math.Inf(-1), ZMin: math.Inf(1), ZMax: math.Inf(-1)}
}

func (b *BBox) extend(x, y, z float64) {
	b.XMin, b.XMax = math.Min(b.XMin, x), math.Max(b.XMax, x)
	b.YMin, b.YMax = math.Min(b.YMin, y), math.Max(b.YMax, y)
	b.ZMin, b.ZMax = math.Min(b.ZMin, z), math.Max(b.ZMax, z)
}

// FileResult is one file's contribution to an ingest job.
type FileResult struct {
	Path        string
	PointCount  int
	RejectCount int
	Blocks      []Block
	Stats       BlockSizeStats
	BBox        BBox
}

// Pipeline drives a LAS file through quantization, Morton encoding,
// and block construction (C5), logging progress the way the
// teacher's CLI entry points do.
type Pipeline struct {
	Log *logger.Logger
}

// NewPipeline returns a Pipeline that logs through log.
func NewPipeline(log *logger.Logger) *Pipeline {
	return &Pipeline{Log: log}
}

// IngestFile reads one LAS file end to end and returns its encoded
// blocks. q quantizes the scaled coordinates; raw mode does not use q
// (z is rounded to two decimals directly), so q may be nil there.
// headLen/tailLen must already be resolved
// for the dataset (computed once from directory-wide metadata in dir
// mode, so every file in the directory shares one split).
func (p *Pipeline) IngestFile(path string, source CoordSource, q *quantize.Quantizer, headLen, tailLen int) (*FileResult, error) {
	h, err := lasfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	result := &FileResult{Path: path, BBox: emptyBBox()}
	var points []EncodedPoint

	err = h.ChunkIter(DefaultChunkSize, func(c lasfile.Chunk) error {
		for i := 0; i < c.Len(); i++ {
			var X, Y int64
			var Z float64

			switch source {
			case CoordSourceRaw:
				X, Y = int64(c.RawX[i]), int64(c.RawY[i])
				if X < 0 || Y < 0 {
					result.RejectCount++
					continue
				}
				Z = math.Round(c.ScaledZ[i]*100) / 100
			default:
				pt, qErr := q.Quantize(c.ScaledX[i], c.ScaledY[i], c.ScaledZ[i])
				if qErr != nil {
					result.RejectCount++
					continue
				}
				X, Y, Z = pt.X, pt.Y, pt.Z
			}

			key, encErr := morton.Encode(X, Y)
			if encErr != nil {
				// The quantizer rejects negative X/Y and a raw int32
				// coordinate cannot exceed MaxCoord, so this fires
				// only for a scaled-mode coordinate that quantizes
				// above MaxCoord; such a point is counted as a reject
				// rather than aborting the whole file.
				result.RejectCount++
				continue
			}

			head, tail := morton.Split(key, uint(tailLen))
			points = append(points, EncodedPoint{Head: head, Tail: tail, Z: Z})
			result.PointCount++
			result.BBox.extend(c.ScaledX[i], c.ScaledY[i], c.ScaledZ[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Blocks, result.Stats = BuildBlocks(points)
	if p.Log != nil {
		p.Log.Info("ingested %s: %d points, %d blocks, %d rejected (min/mean/max block size %d/%.1f/%d)",
			filepath.Base(path), result.PointCount, result.Stats.Blocks, result.RejectCount,
			result.Stats.MinPoints, result.Stats.MeanPoints, result.Stats.MaxPoints)
	}
	return result, nil
}

// DirFiles lists the regular files directly inside dir, the set a
// "dir" mode ingest job processes (spec.md §6.3).
func DirFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.IO(err, "listing directory %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// DirMetadata is the header-only summary AggregateDirMetadata
// computes before any file in a directory is fully decoded.
type DirMetadata struct {
	PointCount uint64
	BBox       BBox
}

// AggregateDirMetadata scans every file's header (without reading any
// point data) to compute the union bounding box and total point count
// a directory-mode ingest will produce, grounded on
// original_source/pipeline/import_data.py's DirLoader.get_metadata.
func AggregateDirMetadata(files []string) (DirMetadata, error) {
	meta := DirMetadata{BBox: emptyBBox()}
	for _, path := range files {
		h, err := lasfile.Open(path)
		if err != nil {
			return DirMetadata{}, err
		}
		xMin, xMax, yMin, yMax, zMin, zMax := h.Bounds()
		meta.BBox.extend(xMin, yMin, zMin)
		meta.BBox.extend(xMax, yMax, zMax)
		meta.PointCount += h.PointCount()
		h.Close()
	}
	return meta, nil
}
