package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time interface check.
var _ Adapter[any] = (*File[any])(nil)

// File is the default Adapter backend: one JSON document per key at
// <dir>/<entity>/<key>.json, replaced atomically via write-to-temp, fsync,
// rename.
type File[T any] struct {
	dir string

	mu       sync.Mutex
	initDone bool
}

// NewFile creates a File adapter storing records for entity under baseDir.
func NewFile[T any](baseDir, entity string) *File[T] {
	return &File[T]{dir: filepath.Join(baseDir, entity)}
}

// WaitForInit creates the entity directory.
func (f *File[T]) WaitForInit(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initDone {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir %s: %w", f.dir, err)
	}
	f.initDone = true
	return nil
}

// HasValue reports whether the record file exists.
func (f *File[T]) HasValue(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadValue decodes the record file for key.
func (f *File[T]) ReadValue(_ context.Context, key string) (T, error) {
	var value T
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return value, fmt.Errorf("reading %s: %w", key, ErrNotFound)
		}
		return value, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decoding %s: %w", key, err)
	}
	return value, nil
}

// WriteValue encodes value and atomically replaces the record file.
func (f *File[T]) WriteValue(_ context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return f.replace(key, data)
}

// DeleteValue writes a null tombstone.
func (f *File[T]) DeleteValue(_ context.Context, key string) error {
	return f.replace(key, []byte("null"))
}

func (f *File[T]) replace(key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := writeAtomic(f.path(key), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// writeAtomic creates path's directory, has write fill a temp file next to
// path, fsyncs it, renames it over path and fsyncs the directory. Readers
// see the old content or the new, never a partial file.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming: %w", err)
	}
	return syncDir(dir)
}

// syncDir makes a rename inside dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening dir %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing dir %s: %w", dir, err)
	}
	return nil
}

func (f *File[T]) path(key string) string {
	return filepath.Join(f.dir, fileSafeKey(key)+".json")
}
