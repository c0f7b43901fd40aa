// Package query implements the query engine (C7): box, circle,
// polygon, and z-slab range queries over a dataset stored per
// internal/store's schema. Every public operation populates a
// per-query result table holding decoded geometry(PointZ) rows.
//
// Grounded on the teacher's internal/infrastructure/postgis
// SpatialRepository: the ST_MakePoint/ST_SetSRID insert shape and the
// uuid-suffixed per-request object naming it uses for upload batches,
// applied here to a per-query result table instead of a shared one.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/logger"
	"github.com/sfcdb/sfcdb/internal/morton"
	"github.com/sfcdb/sfcdb/internal/quantize"
	"github.com/sfcdb/sfcdb/internal/store"
)

// FloatBox is an axis-aligned bounding box in a dataset's original
// (unquantized) coordinate system.
type FloatBox struct {
	XMin, XMax, YMin, YMax float64
}

// Circle is a center point and radius, in original coordinates.
type Circle struct {
	CenterX, CenterY, Radius float64
}

// Polygon is a closed ring of (x, y) vertices in original coordinates.
type Polygon struct {
	Vertices [][2]float64
}

// Mode names one of the query kinds a job description can request.
// "nn" is named by spec.md §6.3 but reserved: ModeNearest is always
// rejected by Run.
type Mode string

const (
	ModeBBox    Mode = "bbox"
	ModeCircle  Mode = "circle"
	ModePolygon Mode = "polygon"
	ModeNearest Mode = "nn"
)

// Request is the engine-facing shape of a query job (spec.md §6.3):
// exactly one of Box/Circle/Polygon is populated depending on Mode,
// and MaxZ/MinZ apply as refinements on top of whichever geometry
// query ran.
type Request struct {
	Mode    Mode
	Box     FloatBox
	Circle  Circle
	Polygon Polygon
	MaxZ    *float64
	MinZ    *float64
}

// ResultTable names a per-query results table holding decoded points.
// Its lifetime is the caller's responsibility — Engine never drops it.
type ResultTable string

// Engine runs queries against one store connection.
type Engine struct {
	Store *store.Store
	Log   *logger.Logger
}

// New returns an Engine. log may be nil, in which case query progress
// is not logged.
func New(s *store.Store, log *logger.Logger) *Engine {
	return &Engine{Store: s, Log: log}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log != nil {
		e.Log.Info(format, args...)
	}
}

// newResultTable returns a fresh table name, unique enough that
// concurrent query *processes* against the same database never
// collide (spec.md §5 forbids concurrent queries within one process,
// but says nothing about two separate invocations).
func newResultTable() ResultTable {
	return ResultTable("query_result_" + strings.ReplaceAll(uuid.New().String(), "-", "_"))
}

// createResultTable creates the PointZ geometry table a query
// populates, per spec.md §4.6's requirement that the spatial
// extension be available for the PointZ geometry result tables use.
func createResultTable(ctx context.Context, tx *sqlx.Tx, table ResultTable, srid int) error {
	ddl := fmt.Sprintf(`CREATE TABLE %s (point geometry(PointZ, %d) NOT NULL)`, table, srid)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return apperr.DB(err, "creating result table %s", table)
	}
	return nil
}

// DropResultTable removes a result table once the caller is done with
// it. Not called automatically: result tables outlive the query that
// populated them so a caller can read R after Run returns.
func (e *Engine) DropResultTable(ctx context.Context, table ResultTable) error {
	return e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return apperr.DB(err, "dropping result table %s", table)
		}
		return nil
	})
}

// loadGeometry reads a dataset's metadata and recomputes head_len and
// tail_len from its stored ratio, per the open-question decision that
// these are never persisted directly (spec.md §9; see DESIGN.md).
func (e *Engine) loadGeometry(ctx context.Context, dataset string) (*store.Metadata, *quantize.Quantizer, int, int, error) {
	meta, err := store.ReadMetadata(ctx, e.Store, dataset)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	q, err := quantize.New(meta.Scales, meta.Offsets)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	rep, err := q.Quantize(meta.BBox[1], meta.BBox[3], 0)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	headLen, tailLen, err := morton.HeadLen(rep.X, rep.Y, meta.Ratio)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	return meta, q, headLen, tailLen, nil
}

// BoxQuery runs the range-scan protocol (spec.md §4.7 steps 1-5) for
// box against dataset and returns the result table it populated.
func (e *Engine) BoxQuery(ctx context.Context, dataset string, box FloatBox) (ResultTable, error) {
	meta, q, headLen, tailLen, err := e.loadGeometry(ctx, dataset)
	if err != nil {
		return "", err
	}

	curveBox := q.QuantizeBoxOutward(box.XMin, box.XMax, box.YMin, box.YMax)
	table := newResultTable()

	var inserted int
	err = e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := createResultTable(ctx, tx, table, meta.SRID); err != nil {
			return err
		}
		n, err := rangeScan(ctx, tx, dataset, table, curveBox, headLen, tailLen, q)
		inserted = n
		return err
	})
	if err != nil {
		return "", err
	}

	e.logf("box_query dataset=%s points=%d", dataset, inserted)
	return table, nil
}

// circleAABB derives the axis-aligned bounding box of a circle, the
// geometry BoxQuery actually scans (spec.md §4.7).
func circleAABB(c Circle) FloatBox {
	return FloatBox{
		XMin: c.CenterX - c.Radius, XMax: c.CenterX + c.Radius,
		YMin: c.CenterY - c.Radius, YMax: c.CenterY + c.Radius,
	}
}

// polygonAABB derives the axis-aligned bounding box of a polygon's
// vertices.
func polygonAABB(p Polygon) FloatBox {
	if len(p.Vertices) == 0 {
		return FloatBox{}
	}
	box := FloatBox{XMin: p.Vertices[0][0], XMax: p.Vertices[0][0], YMin: p.Vertices[0][1], YMax: p.Vertices[0][1]}
	for _, v := range p.Vertices[1:] {
		if v[0] < box.XMin {
			box.XMin = v[0]
		}
		if v[0] > box.XMax {
			box.XMax = v[0]
		}
		if v[1] < box.YMin {
			box.YMin = v[1]
		}
		if v[1] > box.YMax {
			box.YMax = v[1]
		}
	}
	return box
}

// CircleQuery derives the circle's AABB, runs BoxQuery into it, then
// refines R in place with ST_DWithin (spec.md §4.7).
func (e *Engine) CircleQuery(ctx context.Context, dataset string, c Circle) (ResultTable, error) {
	table, err := e.BoxQuery(ctx, dataset, circleAABB(c))
	if err != nil {
		return "", err
	}
	err = e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE NOT ST_DWithin(point, ST_MakePoint($1, $2), $3)`, table)
		_, err := tx.ExecContext(ctx, del, c.CenterX, c.CenterY, c.Radius)
		if err != nil {
			return apperr.DB(err, "refining circle query on %s", table)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	e.logf("circle_query dataset=%s refined to radius=%g", dataset, c.Radius)
	return table, nil
}

// PolygonQuery derives the polygon's AABB, runs BoxQuery into it, then
// refines R in place with ST_Within against an ST_GeomFromText WKT
// polygon (spec.md §4.7).
func (e *Engine) PolygonQuery(ctx context.Context, dataset string, p Polygon) (ResultTable, error) {
	if len(p.Vertices) < 3 {
		return "", apperr.Config("polygon query requires at least 3 vertices, got %d", len(p.Vertices))
	}
	table, err := e.BoxQuery(ctx, dataset, polygonAABB(p))
	if err != nil {
		return "", err
	}

	wkt := polygonWKT(p)
	err = e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE NOT ST_Within(point, ST_GeomFromText($1))`, table)
		_, err := tx.ExecContext(ctx, del, wkt)
		if err != nil {
			return apperr.DB(err, "refining polygon query on %s", table)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	e.logf("polygon_query dataset=%s vertices=%d", dataset, len(p.Vertices))
	return table, nil
}

// polygonWKT renders a closed ring as a WKT POLYGON literal for
// ST_GeomFromText, closing the ring if the caller did not repeat the
// first vertex.
func polygonWKT(p Polygon) string {
	verts := p.Vertices
	if len(verts) > 0 && verts[0] != verts[len(verts)-1] {
		verts = append(append([][2]float64{}, verts...), verts[0])
	}
	var b strings.Builder
	b.WriteString("POLYGON((")
	for i, v := range verts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%g %g", v[0], v[1])
	}
	b.WriteString("))")
	return b.String()
}

// ApplyMaxZ deletes rows above zmax from an already-populated result
// table (spec.md §4.7). Running it twice with the same zmax is a
// no-op the second time, satisfying the idempotence invariant.
func (e *Engine) ApplyMaxZ(ctx context.Context, table ResultTable, zmax float64) error {
	return e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE ST_Z(point) > $1`, table)
		if _, err := tx.ExecContext(ctx, del, zmax); err != nil {
			return apperr.DB(err, "applying maxz refinement on %s", table)
		}
		return nil
	})
}

// ApplyMinZ deletes rows below zmin from an already-populated result
// table (spec.md §4.7).
func (e *Engine) ApplyMinZ(ctx context.Context, table ResultTable, zmin float64) error {
	return e.Store.Transaction(ctx, func(tx *sqlx.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE ST_Z(point) < $1`, table)
		if _, err := tx.ExecContext(ctx, del, zmin); err != nil {
			return apperr.DB(err, "applying minz refinement on %s", table)
		}
		return nil
	})
}

// Run dispatches a job-description query request to the matching
// operation and applies any z-slab refinement, returning the result
// table. "nn" is reserved and always rejected (spec.md §6.3).
func (e *Engine) Run(ctx context.Context, dataset string, req Request) (ResultTable, error) {
	var table ResultTable
	var err error

	switch req.Mode {
	case ModeBBox:
		table, err = e.BoxQuery(ctx, dataset, req.Box)
	case ModeCircle:
		table, err = e.CircleQuery(ctx, dataset, req.Circle)
	case ModePolygon:
		table, err = e.PolygonQuery(ctx, dataset, req.Polygon)
	case ModeNearest:
		return "", apperr.QueryUnsupported("nearest-neighbor queries are reserved and not implemented")
	default:
		return "", apperr.QueryUnsupported("unknown query mode %q", req.Mode)
	}
	if err != nil {
		return "", err
	}

	if req.MaxZ != nil {
		if err := e.ApplyMaxZ(ctx, table, *req.MaxZ); err != nil {
			return "", err
		}
	}
	if req.MinZ != nil {
		if err := e.ApplyMinZ(ctx, table, *req.MinZ); err != nil {
			return "", err
		}
	}

	return table, nil
}
