// Package sqlite implements the storage contracts on modernc.org/sqlite.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/authserver/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/authserver/internal/storage/sqlite/migrations"
)

// Store is a SQLite-backed implementation of storage.AccountStore and
// storage.SessionStore.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, applies pragmas and runs pending
// migrations. Pass ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the held onboarding transaction and readers.
	if strings.HasPrefix(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(db, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle so sibling stores can share one database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
