/*
Package sqlstore provides a database/sql implementation of ledger.TxStore.

PURPOSE:
  Durable storage for channels and their entries. The same code runs on
  SQLite (mattn/go-sqlite3, default for dev and tests) and PostgreSQL
  (lib/pq); queries are written with ? placeholders and rebound for
  postgres.

KEY TABLES:
  channels:       one row per channel, balance cached as decimal TEXT
  ledger_entries: append-only log, no UPDATE or DELETE is ever issued
                  (Reset, for demo data, is the only exception)

CONSTRAINTS:
  - idx_entries_sale_reference: a sale reference is recorded once per owner (ErrDuplicateReference)
  - idx_entries_channel_sequence: one entry per channel version
  - UPDATE channels ... WHERE version = ?: the compare-and-set (ErrVersionConflict)

TIMESTAMPS:
  Stored as fixed-width UTC text with nanoseconds so lexical order is
  chronological on both dialects.

SQLITE:
  Opened with foreign keys and WAL. The pool is capped at one connection:
  ":memory:" databases are per-connection, and SQLite serializes writers
  anyway. Nothing inside WithTx may touch the pool, only the tx.

MIGRATION:
  Schema is managed by goose; migrations are embedded and applied on Open.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/warp/channel-ledger/config"
	"github.com/warp/channel-ledger/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements ledger.TxStore.
type Store struct {
	queries
	db     *sql.DB
	driver string
}

// Open connects, applies migrations and returns a ready store.
// For SQLite, DSN is a file path or ":memory:".
func Open(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	dsn := cfg.DSN
	var dialect goose.Dialect
	switch cfg.Driver {
	case DriverSQLite:
		dialect = goose.DialectSQLite3
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	s.queries = queries{q: db, postgres: cfg.Driver == DriverPostgres}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if path == ":memory:" {
		return path + "?_foreign_keys=on"
	}
	return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{q: tx, postgres: s.postgres}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"ledger_entries", "channels"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}
