// Package sqlite implements storage.IdPStore backed by SQLite.
package sqlite

import (
	"database/sql"

	_ "modernc.org/sqlite" // CGO-less SQLite driver

	"ssogate/internal/storage"
)

// Store implements storage.IdPStore backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.IdPStore = (*Store)(nil)

// New opens (or creates) the database at dsn and applies pending migrations.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }
