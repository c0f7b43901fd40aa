package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sfcdb/sfcdb/internal/apperr"
)

// Metadata is the one-row-per-dataset record from spec.md §3: name,
// srid, point count, the ratio used to derive head_len/tail_len, the
// quantization parameters, and the original-coordinate bounding box.
type Metadata struct {
	Name       string
	SRID       int
	PointCount int64
	Ratio      float64
	Scales     [3]float64
	Offsets    [3]float64
	BBox       [6]float64 // xmin, xmax, ymin, ymax, zmin, zmax
}

// InsertMetadata writes the dataset's metadata row, or merges into an
// existing one. Per spec.md §5 this must happen before any block row
// is bulk-loaded; per spec.md §3 a dataset "mutated only by further
// ingests appending to the same name" must survive a second ingest job
// targeting it, so a name collision accumulates point_count and grows
// the bbox to cover both ingests rather than failing on the name's
// primary key.
func InsertMetadata(ctx context.Context, tx *sqlx.Tx, m Metadata) error {
	if err := ValidateDatasetName(m.Name); err != nil {
		return err
	}

	table := metadataTable(m.Name)
	query := fmt.Sprintf(`
		INSERT INTO %s AS t (name, srid, point_count, ratio, scales, offsets, bbox)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			point_count = t.point_count + EXCLUDED.point_count,
			ratio = EXCLUDED.ratio,
			scales = EXCLUDED.scales,
			offsets = EXCLUDED.offsets,
			bbox = ARRAY[
				LEAST(t.bbox[1], EXCLUDED.bbox[1]),
				GREATEST(t.bbox[2], EXCLUDED.bbox[2]),
				LEAST(t.bbox[3], EXCLUDED.bbox[3]),
				GREATEST(t.bbox[4], EXCLUDED.bbox[4]),
				LEAST(t.bbox[5], EXCLUDED.bbox[5]),
				GREATEST(t.bbox[6], EXCLUDED.bbox[6])
			]`, table)

	_, err := tx.ExecContext(ctx, query,
		m.Name, m.SRID, m.PointCount, m.Ratio,
		pq.Array(m.Scales[:]), pq.Array(m.Offsets[:]), pq.Array(m.BBox[:]),
	)
	if err != nil {
		return apperr.DB(err, "inserting metadata for %s", m.Name)
	}
	return nil
}

// ReadMetadata loads a dataset's metadata row. The query engine calls
// this first so head_len/tail_len can be recomputed from Ratio and
// the bbox's quantized maximum, never hardcoded (spec.md §9).
func ReadMetadata(ctx context.Context, s *Store, name string) (*Metadata, error) {
	if err := ValidateDatasetName(name); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT name, srid, point_count, ratio, scales, offsets, bbox FROM %s WHERE name = $1`, metadataTable(name))

	var m Metadata
	var scales, offsets, bbox pq.Float64Array
	row := s.db.QueryRowxContext(ctx, query, name)
	if err := row.Scan(&m.Name, &m.SRID, &m.PointCount, &m.Ratio, &scales, &offsets, &bbox); err != nil {
		return nil, apperr.DB(err, "reading metadata for %s", name)
	}

	copy(m.Scales[:], scales)
	copy(m.Offsets[:], offsets)
	copy(m.BBox[:], bbox)
	return &m, nil
}
