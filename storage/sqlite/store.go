// Package sqlite implements storage.Store over a single SQLite file using
// sqlx and the pure-Go modernc driver. The process is the only writer, so
// the pool is capped at one connection and every multi-statement write runs
// in an explicit transaction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/banasa44/buiss-scrapper-sub000/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the sqlite-backed implementation of storage.Store.
type Store struct {
	db    *sqlx.DB
	nowFn func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// connection pragmas. Use ":memory:" for an in-process throwaway store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// Single writer: one connection avoids SQLITE_BUSY churn entirely and
	// makes ":memory:" behave like a file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply sqlite pragmas")
	}

	return &Store{db: db, nowFn: time.Now}, nil
}

// SetNowFunc overrides the wall clock used for row bookkeeping timestamps.
// Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

func (s *Store) now() string { return storage.FormatTime(s.nowFn()) }

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies pending migration files in name order. Each file runs in
// its own transaction and is recorded in schema_migrations; a half-applied
// file rolls back and aborts the sequence.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "read embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	applied := map[string]bool{}
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, `SELECT name FROM schema_migrations`); err != nil {
		return errors.Wrap(err, "list applied migrations")
	}
	for _, r := range rows {
		applied[r] = true
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		if err := s.applyMigration(ctx, name, string(body)); err != nil {
			return err
		}
		log.WithField("migration", name).Info("Applied schema migration")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin migration %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return errors.Wrapf(err, "apply migration %s", name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
		name, s.now()); err != nil {
		return errors.Wrapf(err, "record migration %s", name)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %s", name)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// getContext scans one row into dest, mapping sql.ErrNoRows to found=false.
func getContext(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
