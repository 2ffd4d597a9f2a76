package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Document is a JSON file that is held fully in memory and rewritten as a
// whole after every mutation.
type Document[T any] struct {
	path  string
	mu    sync.RWMutex
	value T
	// init returns the value used when the file is missing or empty.
	init func() T
}

func NewDocument[T any](path string, init func() T) *Document[T] {
	return &Document[T]{path: path, init: init, value: init()}
}

func (d *Document[T]) Path() string {
	return d.path
}

// Load replaces the in-memory value with the content of the file.
// A missing or blank file loads as the initial value.
func (d *Document[T]) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.value = d.init()
			return nil
		}
		return fmt.Errorf("read %s: %w", d.path, err)
	}

	v := d.init()
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("decode %s: %w", d.path, err)
		}
	}
	d.value = v
	return nil
}

// Read calls f with the current value under a read lock.
// f must not retain references to the value.
func (d *Document[T]) Read(f func(v T)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f(d.value)
}

// Update calls f with a pointer to the value under a write lock and saves
// the document when f returns nil. The mutation is kept in memory even if
// the save fails.
func (d *Document[T]) Update(f func(v *T) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := f(&d.value); err != nil {
		return err
	}
	if err := d.save(); err != nil {
		return storageError("save "+filepath.Base(d.path), err)
	}
	return nil
}

// save writes the value to a temporary file next to the document and
// renames it over the document. Must be called with the lock held.
func (d *Document[T]) save() error {
	b, err := json.MarshalIndent(d.value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
