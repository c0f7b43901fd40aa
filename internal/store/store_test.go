package store

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfcdb/sfcdb/internal/ingest"
)

func TestValidateDatasetName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"forest_a", true},
		{"Forest2", true},
		{"_forest", false},
		{"2forest", false},
		{"forest-a", false},
		{"forest a", false},
		{"", false},
	}
	for _, c := range cases {
		err := ValidateDatasetName(c.name)
		if c.ok {
			assert.NoError(t, err, c.name)
		} else {
			assert.Error(t, err, c.name)
		}
	}
}

func TestConfig_DSN_DefaultsSSLMode(t *testing.T) {
	cfg := Config{Host: "db.internal", Port: 5432, Database: "forest", User: "loader", Password: "s3cret"}
	dsn := cfg.dsn()
	assert.Contains(t, dsn, "sslmode=prefer")
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=forest")
}

func TestWriteCSV_MatchesWireFormat(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/blocks.csv"

	blocks := []ingest.Block{
		{Head: 3, Tails: []uint64{1, 2}, Zs: []float64{10.5, 10.75}},
		{Head: 7, Tails: []uint64{9}, Zs: []float64{3}},
	}
	require.NoError(t, WriteCSV(path, blocks))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "sfc_head,sfc_tail,z\n" +
		"3,\"{1,2}\",\"{10.50,10.75}\"\n" +
		"7,\"{9}\",\"{3.00}\"\n"
	assert.Equal(t, want, string(data))
}

func TestParseCSVRow_RoundTripsWriteCSVOutput(t *testing.T) {
	blk := ingest.Block{Head: 42, Tails: []uint64{5, 6, 7}, Zs: []float64{1.25, 1.5, 1.75}}

	dir := t.TempDir()
	path := dir + "/row.csv"
	require.NoError(t, WriteCSV(path, []ingest.Block{blk}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	head, tails, zs, err := parseCSVRow(lines[1])
	require.NoError(t, err)
	assert.Equal(t, int64(42), head)
	assert.Equal(t, []int64{5, 6, 7}, tails)
	assert.Equal(t, []float64{1.25, 1.5, 1.75}, zs)
}

func TestParseCSVRow_RejectsMalformedRow(t *testing.T) {
	_, _, _, err := parseCSVRow("not,a,valid,row")
	assert.Error(t, err)
}

func TestWriteCSV_EmptyBlocks(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/empty.csv"
	require.NoError(t, WriteCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sfc_head,sfc_tail,z\n", string(data))
}

// testConfig builds a Config from SFCDB_TEST_* environment variables.
// Tests that need a live database are skipped when the host is unset,
// the same shape as the teacher's setupTestContainer nil-check.
func testConfig(t *testing.T) (Config, bool) {
	t.Helper()
	host := os.Getenv("SFCDB_TEST_DB_HOST")
	if host == "" {
		return Config{}, false
	}
	port, _ := strconv.Atoi(os.Getenv("SFCDB_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	return Config{
		Host:     host,
		Port:     port,
		Database: os.Getenv("SFCDB_TEST_DB_NAME"),
		User:     os.Getenv("SFCDB_TEST_DB_USER"),
		Password: os.Getenv("SFCDB_TEST_DB_PASSWORD"),
		SSLMode:  "disable",
	}, true
}

func TestStore_SchemaMetadataAndBulkLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg, ok := testConfig(t)
	if !ok {
		t.Skip("SFCDB_TEST_DB_HOST not set - requires a live Postgres/PostGIS instance")
	}

	ctx := context.Background()
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("could not reach test database: %v", err)
	}
	defer s.Close()

	const dataset = "store_test_dataset"

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return CreateDatasetSchema(ctx, tx, dataset)
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return InsertMetadata(ctx, tx, Metadata{
			Name:       dataset,
			SRID:       4326,
			PointCount: 2,
			Ratio:      2.0,
			Scales:     [3]float64{0.01, 0.01, 0.01},
			Offsets:    [3]float64{0, 0, 0},
			BBox:       [6]float64{0, 10, 0, 10, 0, 5},
		})
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return BulkLoadRows(ctx, tx, dataset, []ingest.Block{
			{Head: 1, Tails: []uint64{0, 1}, Zs: []float64{1.0, 2.0}},
		})
	}))

	meta, err := ReadMetadata(ctx, s, dataset)
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.PointCount)

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return DropDataset(ctx, tx, dataset)
	}))
}

func TestInsertMetadata_AppendsOnNameConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg, ok := testConfig(t)
	if !ok {
		t.Skip("SFCDB_TEST_DB_HOST not set - requires a live Postgres/PostGIS instance")
	}

	ctx := context.Background()
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("could not reach test database: %v", err)
	}
	defer s.Close()

	const dataset = "store_test_append_dataset"

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return CreateDatasetSchema(ctx, tx, dataset)
	}))
	defer s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return DropDataset(ctx, tx, dataset)
	})

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return InsertMetadata(ctx, tx, Metadata{
			Name: dataset, SRID: 4326, PointCount: 2, Ratio: 0.6,
			Scales: [3]float64{0.01, 0.01, 0.01}, Offsets: [3]float64{0, 0, 0},
			BBox: [6]float64{0, 10, 0, 10, 0, 5},
		})
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return InsertMetadata(ctx, tx, Metadata{
			Name: dataset, SRID: 4326, PointCount: 3, Ratio: 0.6,
			Scales: [3]float64{0.01, 0.01, 0.01}, Offsets: [3]float64{0, 0, 0},
			BBox: [6]float64{-5, 8, -2, 12, 0, 9},
		})
	}))

	meta, err := ReadMetadata(ctx, s, dataset)
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.PointCount)
	assert.Equal(t, [6]float64{-5, 10, -2, 12, 0, 9}, meta.BBox)
}
