package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/sfcdb/sfcdb/internal/apperr"
)

// datasetNamePattern restricts dataset names to identifiers safe to
// interpolate into table names: the block/metadata/index table names
// are per-dataset (pc_record_D, pc_metadata_D, btree_D) and SQL does
// not let an identifier be a bind parameter, so this check is the
// only thing standing between a job description and SQL injection via
// the dataset name.
var datasetNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateDatasetName rejects any name that is not a safe SQL
// identifier.
func ValidateDatasetName(name string) error {
	if !datasetNamePattern.MatchString(name) {
		return apperr.Config("dataset name %q must start with a letter and contain only letters, digits, and underscores", name)
	}
	return nil
}

func recordTable(name string) string   { return "pc_record_" + name }
func metadataTable(name string) string { return "pc_metadata_" + name }
func btreeIndex(name string) string    { return "btree_" + name }

// RecordTable returns the block table name for dataset name, for
// callers outside this package (the query engine's range scan) that
// need to reference it directly. Validates name first since it is
// interpolated into SQL as an identifier.
func RecordTable(name string) (string, error) {
	if err := ValidateDatasetName(name); err != nil {
		return "", err
	}
	return recordTable(name), nil
}

// CreateDatasetSchema creates the two tables for dataset name, per
// spec.md §4.6. The b-tree index is created separately by
// CreateHeadIndex, only after bulk load completes (spec.md §5).
func CreateDatasetSchema(ctx context.Context, tx *sqlx.Tx, name string) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			srid INTEGER NOT NULL,
			point_count BIGINT NOT NULL,
			ratio DOUBLE PRECISION NOT NULL,
			scales DOUBLE PRECISION[] NOT NULL,
			offsets DOUBLE PRECISION[] NOT NULL,
			bbox DOUBLE PRECISION[] NOT NULL
		)`, metadataTable(name))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return apperr.DB(err, "creating metadata table for %s", name)
	}

	ddl = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			sfc_head INTEGER NOT NULL,
			sfc_tail INTEGER[] NOT NULL,
			z DOUBLE PRECISION[] NOT NULL
		)`, recordTable(name))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return apperr.DB(err, "creating record table for %s", name)
	}

	return nil
}

// CreateHeadIndex builds the b-tree index on sfc_head. Called only
// after every block row from an ingest has been bulk-loaded, so a
// reader that sees the metadata row may still find this index absent
// until the job reports success (spec.md §5).
func CreateHeadIndex(ctx context.Context, tx *sqlx.Tx, name string) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}
	ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (sfc_head)`, btreeIndex(name), recordTable(name))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return apperr.DB(err, "building head index for %s", name)
	}
	return nil
}

// DropDataset destroys both tables for name, the only way a dataset
// is removed (spec.md §3 "Destroyed by dropping both tables").
func DropDataset(ctx context.Context, tx *sqlx.Tx, name string) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, recordTable(name))); err != nil {
		return apperr.DB(err, "dropping record table for %s", name)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, metadataTable(name))); err != nil {
		return apperr.DB(err, "dropping metadata table for %s", name)
	}
	return nil
}
