// Package store provides the durable key-value backing stores that draft
// caches write through to.
//
// # Architecture
//
// The contract is deliberately small and split across interfaces:
//
//   - Store: Get and Set of string values by string key
//   - Deleter: removal of a record (used by external collaborators, never by
//     the draft cache itself)
//   - Lister: enumeration of keys by prefix for admin tooling
//
// Three implementations are provided:
//
//   - SQLiteStore: a drafts table in SQLite, the production backend
//   - FileStore: one file per key under a directory
//   - MemoryStore: an in-memory map with failure injection for tests
//
// # SQLite Configuration
//
// The SQLite store runs with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Two drivers are supported and selected by name:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// Database file locations:
//
//   - Production: /var/lib/draftkeep/drafts.db
//   - Development: ~/.local/share/draftkeep/drafts.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
// Get returns ErrNotFound when no record exists for a key. Delete returns
// ErrNotFound when there was nothing to delete. All other errors are wrapped
// with the failing operation.
//
// All methods accept context.Context for cancellation support.
package store
