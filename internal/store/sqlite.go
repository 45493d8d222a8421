package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements KeyValue on a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ KeyValue = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
// The path ":memory:" opens a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Get returns the blob stored under key, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Blob, error) {
	var b Blob
	err := s.db.GetContext(ctx, &b,
		"SELECT name, value, version, updated_at FROM kv WHERE name = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return &b, nil
}

// Set writes value unconditionally.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) (int64, error) {
	var version int64
	err := s.db.GetContext(ctx, &version, `
		INSERT INTO kv (name, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", key, err)
	}
	return version, nil
}

// CompareAndSwap writes value if the stored version equals version.
func (s *SQLiteStore) CompareAndSwap(
	ctx context.Context,
	key, value string,
	version int64,
) (int64, error) {
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if version == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO kv (name, value, version, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(name) DO NOTHING`,
			key, value, now,
		)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE kv SET value = ?, version = version + 1, updated_at = ?
			WHERE name = ? AND version = ?`,
			value, now, key, version,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("writing %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("writing %s: %w", key, err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("writing %s at version %d: %w", key, version, ErrVersionConflict)
	}
	return version + 1, nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE name = ?", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys starting with prefix, in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		"SELECT name FROM kv WHERE substr(name, 1, ?) = ? ORDER BY name",
		utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}
