// ABOUTME: Backing store interfaces and shared types for draft persistence
// ABOUTME: Defines the Get/Set contract plus optional Delete and List capabilities

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a key
var ErrNotFound = errors.New("not found")

// Store is a synchronous key-value string store. Values are opaque to the
// store; the draft cache writes JSON text.
type Store interface {
	// Get returns the value for key, or ErrNotFound when absent.
	Get(ctx context.Context, key string) (string, error)
	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error
}

// Deleter is implemented by stores that can remove records.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Record, error)
}

// Purger is implemented by stores that can expire stale records.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Record describes a persisted entry without its value.
type Record struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
