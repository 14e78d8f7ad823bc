// ABOUTME: Filesystem implementation of the Store interface, one file per key
// ABOUTME: Writes go through a temp file and rename so readers never see partial values

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	fileSuffix = ".json"

	// maxNameBytes is the name length limit of common filesystems.
	maxNameBytes = 255
)

// ErrKeyTooLong is returned by Set when a key's escaped file name exceeds
// the filesystem name limit. Such a key can never be stored, so Get and
// Delete report ErrNotFound for it.
var ErrKeyTooLong = errors.New("key too long for file store")

// FileStore persists each key as a file under a root directory. Keys are
// path-escaped so any non-empty string whose escaped form fits in one file
// name is a valid key.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// fileName maps key to its file name. A leading dot is escaped so records
// never look like hidden or temp files.
func fileName(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name + fileSuffix
}

func storable(key string) bool {
	return key != "" && len(fileName(key)) <= maxNameBytes
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, fileName(key))
}

// Get reads the file for key.
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	if !storable(key) {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), nil
}

// Set atomically replaces the file for key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if n := len(fileName(key)); n > maxNameBytes {
		return fmt.Errorf("%w: %d bytes escaped, limit %d", ErrKeyTooLong, n, maxNameBytes)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if !storable(key) {
		return ErrNotFound
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// List returns records whose key starts with prefix, ordered by key.
func (s *FileStore) List(_ context.Context, prefix string) ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	records := []Record{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, Record{Key: key, Size: int(info.Size()), UpdatedAt: info.ModTime().UTC()})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// PurgeOlderThan removes files last modified before now minus age.
func (s *FileStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("purge age must be positive, got %s", age)
	}
	records, err := s.List(ctx, "")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-age)
	var n int64
	for _, r := range records {
		if !r.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, r.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}
