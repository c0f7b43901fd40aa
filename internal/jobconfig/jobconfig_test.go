package jobconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonDoc = `{
	"connection": {"host": "db.internal", "port": 5432, "dbname": "forest", "user": "loader", "password": "s3cret"},
	"ingests": [
		{"dataset": "forest_a", "mode": "file", "path": "/data/a.las", "srid": 4326, "ratio": 0.6, "scales": [0.01, 0.01, 0.01], "offsets": [0, 0, 0]}
	],
	"queries": [
		{"source_dataset": "forest_a", "mode": "bbox", "geometry": {"box": {"xmin": 0, "xmax": 10, "ymin": 0, "ymax": 10}}, "maxz": 5.0}
	]
}`

const yamlDoc = `
connection:
  host: db.internal
  port: 5432
  dbname: forest
  user: loader
  password: s3cret
ingests:
  - dataset: forest_a
    mode: dir
    path: /data/forest
    srid: 4326
    ratio: 0.6
    scales: [0.01, 0.01, 0.01]
    offsets: [0, 0, 0]
queries:
  - source_dataset: forest_a
    mode: circle
    geometry:
      circle: {center_x: 5, center_y: 5, radius: 2}
`

func TestLoadFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	require.NoError(t, writeFile(path, jsonDoc))

	jobs, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", jobs.Connection.Host)
	require.Len(t, jobs.Ingests, 1)
	assert.Equal(t, "file", jobs.Ingests[0].Mode)
	require.Len(t, jobs.Queries, 1)
	assert.Equal(t, "bbox", jobs.Queries[0].Mode)
	require.NotNil(t, jobs.Queries[0].Geometry.Box)
	assert.Equal(t, 10.0, jobs.Queries[0].Geometry.Box.XMax)
	require.NotNil(t, jobs.Queries[0].MaxZ)
	assert.Equal(t, 5.0, *jobs.Queries[0].MaxZ)
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, writeFile(path, yamlDoc))

	jobs, err := LoadFile(path)
	require.NoError(t, err)

	require.Len(t, jobs.Ingests, 1)
	assert.Equal(t, "dir", jobs.Ingests[0].Mode)
	require.Len(t, jobs.Queries, 1)
	require.NotNil(t, jobs.Queries[0].Geometry.Circle)
	assert.Equal(t, 2.0, jobs.Queries[0].Geometry.Circle.Radius)
}

func TestLoadFile_RejectsUnknownIngestMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	bad := `{"connection": {}, "ingests": [{"dataset": "d", "mode": "stream", "path": "/x", "ratio": 0.5}]}`
	require.NoError(t, writeFile(path, bad))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_RejectsBadRatio(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	bad := `{"connection": {}, "ingests": [{"dataset": "d", "mode": "file", "path": "/x", "ratio": 1.5}]}`
	require.NoError(t, writeFile(path, bad))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_RejectsUnknownCoordSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	bad := `{"connection": {}, "ingests": [{"dataset": "d", "mode": "file", "path": "/x", "ratio": 0.5, "coord_source": "full"}]}`
	require.NoError(t, writeFile(path, bad))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_AcceptsRawCoordSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	doc := `{"connection": {}, "ingests": [{"dataset": "d", "mode": "file", "path": "/x", "ratio": 0.5, "coord_source": "raw"}]}`
	require.NoError(t, writeFile(path, doc))

	jobs, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw", jobs.Ingests[0].CoordSource)
}

func TestLoadFile_RejectsBboxQueryWithoutBox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	bad := `{"connection": {}, "queries": [{"source_dataset": "d", "mode": "bbox", "geometry": {}}]}`
	require.NoError(t, writeFile(path, bad))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_AcceptsReservedNearestNeighborMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	doc := `{"connection": {}, "queries": [{"source_dataset": "d", "mode": "nn", "geometry": {}}]}`
	require.NoError(t, writeFile(path, doc))

	jobs, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nn", jobs.Queries[0].Mode)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile("/nonexistent/jobs.json")
	assert.Error(t, err)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
