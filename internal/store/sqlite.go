// ABOUTME: SQLite implementation of the Store interface for draft records
// ABOUTME: Supports modernc.org/sqlite (pure Go) and mattn/go-sqlite3 (cgo) drivers

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteStoreWithDriver.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// timeLayout is fixed width so updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store, Deleter and Lister using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure Go driver. The schema is created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver creates a new SQLite store with an explicit
// database/sql driver name. Parent directories are created if needed.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if !isMemoryPath(path) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and serializes
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS drafts (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves the value stored under key.
// Returns ErrNotFound if the key has no record.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM drafts WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying draft: %w", err)
	}
	return value, nil
}

// Set creates or replaces the value stored under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now, now)
	if err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}

	s.logger.Debug("saved draft", "key", key, "size", len(value))
	return nil
}

// Delete removes the record stored under key.
// Returns ErrNotFound if nothing was deleted.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records whose key starts with prefix, ordered by key.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, length(value), updated_at
		FROM drafts
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var r Record
		var updatedAt string
		if err := rows.Scan(&r.Key, &r.Size, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating draft rows: %w", err)
	}
	return records, nil
}

// PurgeOlderThan deletes drafts not updated since now minus age and returns
// how many were removed.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("purge age must be positive, got %s", age)
	}
	cutoff := time.Now().UTC().Add(-age).Format(timeLayout)
	result, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging drafts: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Info("purged stale drafts", "count", n, "older_than", age.String())
	}
	return n, nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isMemoryPath reports whether path names an in-memory database.
func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}
