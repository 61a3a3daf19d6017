// Package sqlite implements durable persistence for the sovereign core over
// a single SQLite file: credentials, the append-only journal, and the graph
// mirror share one set of transaction and visibility boundaries.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/outpost-fi/sovereign/internal/platform/storage/sqlitemigrate"
	"github.com/outpost-fi/sovereign/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements the ledger, credential, and graph store interfaces.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite store and applies bundled migrations. Keeping schema
// evolution here means callers never coordinate migrations independently.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
