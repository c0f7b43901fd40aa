package store

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/ingest"
)

// WriteCSV spills blocks to the wire format described in spec.md
// §6.2: header "sfc_head,sfc_tail,z", each row an integer followed by
// two curly-brace array literals. This is the artifact a resumable or
// cross-process bulk load reads back with BulkLoadCSV, and the file an
// operator's own `psql \copy` can load independently of either.
func WriteCSV(path string, blocks []ingest.Block) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.IO(err, "creating CSV spill %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("sfc_head,sfc_tail,z\n"); err != nil {
		return apperr.IO(err, "writing CSV header to %s", path)
	}

	var b strings.Builder
	for _, blk := range blocks {
		writeCSVRow(&b, blk)
		if _, err := w.WriteString(b.String()); err != nil {
			return apperr.IO(err, "writing CSV row to %s", path)
		}
	}
	if err := w.Flush(); err != nil {
		return apperr.IO(err, "flushing CSV spill %s", path)
	}
	return nil
}

func writeCSVRow(b *strings.Builder, blk ingest.Block) {
	b.Reset()
	b.WriteString(strconv.FormatUint(blk.Head, 10))
	b.WriteString(",\"{")
	for i, t := range blk.Tails {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(t, 10))
	}
	b.WriteString("}\",\"{")
	for i, z := range blk.Zs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(z, 'f', 2, 64))
	}
	b.WriteString("}\"\n")
}

// BulkLoadRows loads blocks already held in memory into pc_record_D
// via the COPY protocol (pq.CopyIn) — one round trip for the whole
// batch instead of one INSERT per row. This is the in-process
// streaming path: the block builder's output never touches disk.
func BulkLoadRows(ctx context.Context, tx *sqlx.Tx, name string, blocks []ingest.Block) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, pq.CopyIn(recordTable(name), "sfc_head", "sfc_tail", "z"))
	if err != nil {
		return apperr.DB(err, "preparing bulk load for %s", name)
	}
	defer stmt.Close()

	for _, blk := range blocks {
		tails := make([]int64, len(blk.Tails))
		for i, t := range blk.Tails {
			tails[i] = int64(t)
		}

		if _, err := stmt.ExecContext(ctx, int64(blk.Head), pq.Array(tails), pq.Array(blk.Zs)); err != nil {
			return apperr.DB(err, "loading block head=%d for %s", blk.Head, name)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return apperr.DB(err, "flushing bulk load for %s", name)
	}
	return nil
}

// BulkLoadCSV replays a spill file written by WriteCSV into
// pc_record_D. spec.md §6.2 specifies the load as a literal
// `COPY ... FROM STDIN WITH CSV HEADER`, but lib/pq's CopyIn takes Go
// values per row rather than a raw byte stream — there is no API for
// handing a driver a pre-formatted CSV file directly. This function
// is the closest equivalent: it parses the spilled rows and replays
// them through the same CopyIn protocol BulkLoadRows uses, so a
// resumable or cross-process load still goes through one COPY round
// trip rather than row-by-row INSERTs.
func BulkLoadCSV(ctx context.Context, tx *sqlx.Tx, name string, path string) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return apperr.IO(err, "opening CSV spill %s", path)
	}
	defer f.Close()

	stmt, err := tx.PreparexContext(ctx, pq.CopyIn(recordTable(name), "sfc_head", "sfc_tail", "z"))
	if err != nil {
		return apperr.DB(err, "preparing bulk load for %s", name)
	}
	defer stmt.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return apperr.IO(err, "reading CSV header from %s", path)
		}
		return apperr.Config("CSV spill %s is empty, expected a header row", path)
	}

	for scanner.Scan() {
		head, tails, zs, err := parseCSVRow(scanner.Text())
		if err != nil {
			return apperr.Config("parsing CSV row in %s: %v", path, err)
		}
		if _, err := stmt.ExecContext(ctx, head, pq.Array(tails), pq.Array(zs)); err != nil {
			return apperr.DB(err, "loading CSV row head=%d for %s", head, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return apperr.IO(err, "reading CSV spill %s", path)
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return apperr.DB(err, "flushing bulk load for %s", name)
	}
	return nil
}

// parseCSVRow parses a single `<int>,"{t1,t2,...}","{z1,z2,...}"` line
// written by WriteCSV. It is deliberately narrow: it trusts the
// format this package itself wrote rather than implementing a general
// CSV/array-literal parser.
func parseCSVRow(line string) (head int64, tails []int64, zs []float64, err error) {
	fields := strings.SplitN(line, ",\"{", 2)
	if len(fields) != 2 {
		return 0, nil, nil, apperr.Config("malformed CSV row %q", line)
	}
	head, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, nil, nil, apperr.Config("malformed sfc_head in row %q", line)
	}

	rest := strings.SplitN(fields[1], "}\",\"{", 2)
	if len(rest) != 2 {
		return 0, nil, nil, apperr.Config("malformed CSV row %q", line)
	}
	tails, err = parseIntArray(rest[0])
	if err != nil {
		return 0, nil, nil, err
	}

	zPart := strings.TrimSuffix(rest[1], "}\"")
	zs, err = parseFloatArray(zPart)
	if err != nil {
		return 0, nil, nil, err
	}
	return head, tails, zs, nil
}

func parseIntArray(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, apperr.Config("malformed tail array element %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloatArray(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, apperr.Config("malformed z array element %q", p)
		}
		out[i] = v
	}
	return out, nil
}
