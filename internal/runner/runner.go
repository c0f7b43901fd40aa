// Package runner executes a job document's ingests or queries with
// per-job isolation (spec.md §7): one failed job is logged and
// skipped rather than aborting the whole run, and the process exit
// code aggregates success across every job.
//
// Grounded on the teacher's cmd/arx/main.go command dispatch shape
// (each subcommand owns one unit of work, logs its own failure, and
// the process decides its exit code afterward) generalized here to a
// loop over a job list instead of one Cobra command per operation.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/ingest"
	"github.com/sfcdb/sfcdb/internal/jobconfig"
	"github.com/sfcdb/sfcdb/internal/lasfile"
	"github.com/sfcdb/sfcdb/internal/logger"
	"github.com/sfcdb/sfcdb/internal/morton"
	"github.com/sfcdb/sfcdb/internal/quantize"
	"github.com/sfcdb/sfcdb/internal/query"
	"github.com/sfcdb/sfcdb/internal/store"
)

// Result records one job's outcome, used both for the printed summary
// and for exit-code aggregation.
type Result struct {
	Kind     string // "ingest" | "query"
	Name     string
	Err      error
	Duration time.Duration
}

// Runner owns the store connection every job in one invocation shares
// (spec.md §5: the connection lives for the process, jobs run
// strictly sequentially against it).
type Runner struct {
	Store *store.Store
	Log   *logger.Logger
}

// New returns a Runner bound to an open store connection.
func New(s *store.Store, log *logger.Logger) *Runner {
	return &Runner{Store: s, Log: log}
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.Log != nil {
		r.Log.Info(format, args...)
	}
}

// RunIngests executes every ingest job in order, isolating failures:
// a failed job is recorded and the next job still runs (spec.md §7,
// "one failed ingest or query must not poison subsequent ones").
func (r *Runner) RunIngests(ctx context.Context, jobs []jobconfig.IngestJob) []Result {
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		start := time.Now()
		err := r.runIngest(ctx, job)
		elapsed := time.Since(start)
		results = append(results, Result{Kind: "ingest", Name: job.Dataset, Err: err, Duration: elapsed})
		if err != nil {
			r.logf("ingest %s failed after %s: %v", job.Dataset, elapsed, err)
		} else {
			r.logf("ingest %s completed in %s", job.Dataset, elapsed)
		}
	}
	return results
}

func (r *Runner) runIngest(ctx context.Context, job jobconfig.IngestJob) error {
	var files []string
	var err error
	switch job.Mode {
	case "file":
		files = []string{job.Path}
	case "dir":
		if files, err = ingest.DirFiles(job.Path); err != nil {
			return err
		}
		readable := files[:0]
		for _, path := range files {
			if _, err := ingest.AggregateDirMetadata([]string{path}); err != nil {
				if !apperr.Is(err, apperr.CodeIO) {
					return err
				}
				r.logf("ingest %s: skipping file %s: %v", job.Dataset, path, err)
				continue
			}
			readable = append(readable, path)
		}
		files = readable
	default:
		return apperr.Config("ingest job %s has unknown mode %q", job.Dataset, job.Mode)
	}
	if len(files) == 0 {
		return apperr.Config("ingest job %s has no files to ingest at %s", job.Dataset, job.Path)
	}

	// In raw mode the plane coordinates are the file's storage integers,
	// so the first file's own scale and offset quantize the dataset.
	scales, offsets := job.Scales, job.Offsets
	if job.CoordSource == "raw" {
		h, err := lasfile.Open(files[0])
		if err != nil {
			return err
		}
		scales, offsets = h.ScaleOffset()
		h.Close()
	}
	q, err := quantize.New(scales, offsets)
	if err != nil {
		return err
	}

	dirMeta, err := ingest.AggregateDirMetadata(files)
	if err != nil {
		return err
	}

	rep, err := q.Quantize(dirMeta.BBox.XMax, dirMeta.BBox.YMax, 0)
	if err != nil {
		return err
	}
	headLen, tailLen, err := morton.HeadLen(rep.X, rep.Y, job.Ratio)
	if err != nil {
		return err
	}

	if err := r.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		return store.CreateDatasetSchema(ctx, tx, job.Dataset)
	}); err != nil {
		return err
	}

	if err := r.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		return store.InsertMetadata(ctx, tx, store.Metadata{
			Name:       job.Dataset,
			SRID:       job.SRID,
			PointCount: int64(dirMeta.PointCount),
			Ratio:      job.Ratio,
			Scales:     scales,
			Offsets:    offsets,
			BBox: [6]float64{
				dirMeta.BBox.XMin, dirMeta.BBox.XMax,
				dirMeta.BBox.YMin, dirMeta.BBox.YMax,
				dirMeta.BBox.ZMin, dirMeta.BBox.ZMax,
			},
		})
	}); err != nil {
		return err
	}

	source := ingest.CoordSourceScaled
	if job.CoordSource == "raw" {
		source = ingest.CoordSourceRaw
	}

	pipeline := ingest.NewPipeline(r.Log)
	var totalReject int
	for _, path := range files {
		res, err := pipeline.IngestFile(path, source, q, headLen, tailLen)
		if err != nil {
			if apperr.Is(err, apperr.CodeIO) && job.Mode == "dir" {
				r.logf("ingest %s: skipping file %s: %v", job.Dataset, path, err)
				continue
			}
			return err
		}
		totalReject += res.RejectCount

		if err := r.bulkLoad(ctx, job.Dataset, res.Blocks); err != nil {
			return err
		}
	}

	if err := r.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		return store.CreateHeadIndex(ctx, tx, job.Dataset)
	}); err != nil {
		return err
	}

	if totalReject > 0 {
		r.logf("ingest %s: %d point(s) rejected for negative quantized coordinates", job.Dataset, totalReject)
	}
	return nil
}

// bulkLoad spills a file's blocks to the CSV wire format (spec.md
// §4.4/§6.2) and replays the spill through BulkLoadCSV, rather than
// handing blocks to BulkLoadRows directly. The spill file is removed
// when bulkLoad returns, whether or not the load succeeded, so a
// failed load is not resumed from it.
func (r *Runner) bulkLoad(ctx context.Context, dataset string, blocks []ingest.Block) error {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("sfcdb_%s_%s.csv", dataset, uuid.New().String()))
	if err := store.WriteCSV(path, blocks); err != nil {
		return err
	}
	defer os.Remove(path)

	return r.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		return store.BulkLoadCSV(ctx, tx, dataset, path)
	})
}

// RunQueries executes every query job in order. A QueryUnsupported
// error (the reserved "nn" mode) is isolated the same as any other
// per-job failure.
func (r *Runner) RunQueries(ctx context.Context, jobs []jobconfig.QueryJob) []Result {
	engine := query.New(r.Store, r.Log)
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		start := time.Now()
		table, err := runQuery(ctx, engine, job)
		elapsed := time.Since(start)
		results = append(results, Result{Kind: "query", Name: job.SourceDataset, Err: err, Duration: elapsed})
		if err != nil {
			r.logf("query against %s failed after %s: %v", job.SourceDataset, elapsed, err)
		} else {
			r.logf("query against %s completed in %s, result table %s", job.SourceDataset, elapsed, table)
		}
	}
	return results
}

func runQuery(ctx context.Context, engine *query.Engine, job jobconfig.QueryJob) (query.ResultTable, error) {
	req := query.Request{Mode: query.Mode(job.Mode), MaxZ: job.MaxZ, MinZ: job.MinZ}

	switch req.Mode {
	case query.ModeBBox:
		if job.Geometry.Box == nil {
			return "", apperr.Config("query against %s has mode bbox but no box geometry", job.SourceDataset)
		}
		b := job.Geometry.Box
		req.Box = query.FloatBox{XMin: b.XMin, XMax: b.XMax, YMin: b.YMin, YMax: b.YMax}
	case query.ModeCircle:
		if job.Geometry.Circle == nil {
			return "", apperr.Config("query against %s has mode circle but no circle geometry", job.SourceDataset)
		}
		c := job.Geometry.Circle
		req.Circle = query.Circle{CenterX: c.CenterX, CenterY: c.CenterY, Radius: c.Radius}
	case query.ModePolygon:
		if job.Geometry.Polygon == nil {
			return "", apperr.Config("query against %s has mode polygon but no polygon geometry", job.SourceDataset)
		}
		req.Polygon = query.Polygon{Vertices: job.Geometry.Polygon.Vertices}
	}

	return engine.Run(ctx, job.SourceDataset, req)
}

// ExitCode aggregates a batch of results into a process exit code: 0
// if every job succeeded, 1 if any failed (spec.md §7).
func ExitCode(results []Result) int {
	for _, res := range results {
		if res.Err != nil {
			return 1
		}
	}
	return 0
}
