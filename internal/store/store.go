// Package store implements the storage schema (C6): the two-table
// layout per dataset, its b-tree index, metadata persistence, and the
// bulk-load path that feeds a freshly built set of blocks into
// Postgres/PostGIS.
//
// Grounded on the teacher's internal/database/connection_pool.go for
// connection setup and the transaction-per-logical-step shape (sqlx,
// lib/pq, a DSN built from discrete fields), and on
// internal/infrastructure/postgis/spatial_repo.go's
// tx.Preparex+stmt.Exec insert loop, upgraded here to the COPY
// protocol (pq.CopyIn) since LiDAR ingest volumes are the kind bulk
// load exists for.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sfcdb/sfcdb/internal/apperr"
)

// Config holds the discrete connection fields from a job description's
// "connection" object (spec.md §6.3); Password may be overridden at
// invocation time independently of the job file.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c Config) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10 application_name=sfcdb",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// Store owns the database handle that every job of one CLI invocation
// shares (internal/runner runs the jobs sequentially against it); it
// is closed when the invocation ends.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the spatial extension is
// available.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, apperr.DB(err, "opening connection to %s", cfg.Database)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperr.DB(err, "pinging %s", cfg.Database)
	}

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS postgis`); err != nil {
		db.Close()
		return nil, apperr.DB(err, "enabling postgis on %s", cfg.Database)
	}

	return &Store{db: db}, nil
}

// Close releases the connection. Every exit path of an invocation must
// call this, including after a failed commit.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction runs fn inside a transaction committed per logical step
// (schema create, metadata insert, bulk load, index create all run as
// separate calls), rolling back on any error or panic.
func (s *Store) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DB(err, "beginning transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.DB(rbErr, "rolling back after: %v", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.DB(err, "committing transaction")
	}
	return nil
}
