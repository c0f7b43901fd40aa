package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/morton"
	"github.com/sfcdb/sfcdb/internal/quantize"
	"github.com/sfcdb/sfcdb/internal/rangecurve"
	"github.com/sfcdb/sfcdb/internal/store"
)

// rangeScan runs the range-scan protocol of spec.md §4.7 for a
// quantized box against dataset, inserting decoded PointZ rows into
// result. Returns the number of points inserted.
func rangeScan(ctx context.Context, tx *sqlx.Tx, dataset string, result ResultTable, box rangecurve.Box, headLen, tailLen int, q *quantize.Quantizer) (int, error) {
	recordTable, err := store.RecordTable(dataset)
	if err != nil {
		return 0, err
	}

	ranges, overlaps := rangecurve.Derive(box, headLen, tailLen)

	inserted := 0

	n, err := scanContainedRanges(ctx, tx, recordTable, result, ranges, q, uint(tailLen))
	if err != nil {
		return 0, err
	}
	inserted += n

	n, err = scanOverlappingHeads(ctx, tx, recordTable, result, overlaps, box, headLen, tailLen, q)
	if err != nil {
		return 0, err
	}
	inserted += n

	return inserted, nil
}

// scanContainedRanges materializes ranges into a temp table and joins
// it against the block table, keeping every tail in a matching row
// unconditionally (spec.md §4.7 steps 2-3).
func scanContainedRanges(ctx context.Context, tx *sqlx.Tx, recordTable string, result ResultTable, ranges []rangecurve.Range, q *quantize.Quantizer, tailLen uint) (int, error) {
	if len(ranges) == 0 {
		return 0, nil
	}

	tmpTable := "tmp_ranges_" + strings.ReplaceAll(uuid.New().String(), "-", "_")
	ddl := fmt.Sprintf(`CREATE TEMPORARY TABLE %s (range_start BIGINT, range_end BIGINT) ON COMMIT DROP`, tmpTable)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, apperr.DB(err, "creating range table %s", tmpTable)
	}

	insert, err := tx.PreparexContext(ctx, fmt.Sprintf(`INSERT INTO %s (range_start, range_end) VALUES ($1, $2)`, tmpTable))
	if err != nil {
		return 0, apperr.DB(err, "preparing range table insert for %s", tmpTable)
	}
	defer insert.Close()
	for _, r := range ranges {
		if _, err := insert.ExecContext(ctx, int64(r.Lo), int64(r.Hi)); err != nil {
			return 0, apperr.DB(err, "populating range table %s", tmpTable)
		}
	}

	query := fmt.Sprintf(`
		SELECT sfc_head, sfc_tail, z FROM %s r
		WHERE EXISTS (SELECT 1 FROM %s t WHERE r.sfc_head BETWEEN t.range_start AND t.range_end)`,
		recordTable, tmpTable)
	rows, err := tx.QueryxContext(ctx, query)
	if err != nil {
		return 0, apperr.DB(err, "scanning contained ranges in %s", recordTable)
	}
	defer rows.Close()

	inserted := 0
	for rows.Next() {
		var head int64
		var tails pq.Int64Array
		var zs pq.Float64Array
		if err := rows.Scan(&head, &tails, &zs); err != nil {
			return 0, apperr.DB(err, "reading contained-range row from %s", recordTable)
		}
		for i, tail := range tails {
			if err := insertPoint(ctx, tx, result, q, uint64(head), uint64(tail), zs[i], tailLen); err != nil {
				return 0, err
			}
			inserted++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, apperr.DB(err, "iterating contained-range rows from %s", recordTable)
	}
	return inserted, nil
}

// scanOverlappingHeads fetches every row whose sfc_head only partially
// overlaps box, then filters tails client-side with DeriveTail
// (spec.md §4.7 step 4).
func scanOverlappingHeads(ctx context.Context, tx *sqlx.Tx, recordTable string, result ResultTable, overlaps []uint64, box rangecurve.Box, headLen, tailLen int, q *quantize.Quantizer) (int, error) {
	if len(overlaps) == 0 {
		return 0, nil
	}

	heads := make([]int64, len(overlaps))
	for i, h := range overlaps {
		heads[i] = int64(h)
	}

	query := fmt.Sprintf(`SELECT sfc_head, sfc_tail, z FROM %s WHERE sfc_head = ANY($1)`, recordTable)
	rows, err := tx.QueryxContext(ctx, query, pq.Array(heads))
	if err != nil {
		return 0, apperr.DB(err, "scanning overlapping heads in %s", recordTable)
	}
	defer rows.Close()

	inserted := 0
	for rows.Next() {
		var head int64
		var tails pq.Int64Array
		var zs pq.Float64Array
		if err := rows.Scan(&head, &tails, &zs); err != nil {
			return 0, apperr.DB(err, "reading overlap row from %s", recordTable)
		}

		tailRanges, _ := rangecurve.DeriveTail(box, uint64(head), headLen, tailLen)
		for i, tail := range tails {
			if !tailInRanges(uint64(tail), tailRanges) {
				continue
			}
			if err := insertPoint(ctx, tx, result, q, uint64(head), uint64(tail), zs[i], uint(tailLen)); err != nil {
				return 0, err
			}
			inserted++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, apperr.DB(err, "iterating overlap rows from %s", recordTable)
	}
	return inserted, nil
}

func tailInRanges(tail uint64, ranges []rangecurve.Range) bool {
	for _, r := range ranges {
		if r.Contains(tail) {
			return true
		}
	}
	return false
}

// insertPoint recovers the full key from (head, tail), decodes it to
// quantized (X, Y), dequantizes to world coordinates, and inserts the
// resulting PointZ into result (spec.md §4.7 step 5).
func insertPoint(ctx context.Context, tx *sqlx.Tx, result ResultTable, q *quantize.Quantizer, head, tail uint64, z float64, tailLen uint) error {
	key := morton.Join(head, tail, tailLen)
	X, Y := morton.Decode(key)
	x, y, zz := q.Dequantize(X, Y, z)

	insert := fmt.Sprintf(`INSERT INTO %s (point) VALUES (ST_MakePoint($1, $2, $3))`, result)
	if _, err := tx.ExecContext(ctx, insert, x, y, zz); err != nil {
		return apperr.DB(err, "inserting point into %s", result)
	}
	return nil
}
