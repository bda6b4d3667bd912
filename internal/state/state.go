// Package state persists small JSON records that must survive across
// browserctl invocations: the browser process record and the tracer status.
//
// A record is written when the thing it describes comes into existence,
// validated before it is trusted on read, and deleted on teardown or as soon
// as it is found to be invalid.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Repository stores one record of type T at a fixed path.
type Repository[T any] struct {
	path     string
	validate func(*T) error
}

// New returns a repository at path. validate may be nil.
func New[T any](path string, validate func(*T) error) *Repository[T] {
	return &Repository[T]{path: path, validate: validate}
}

func (r *Repository[T]) Path() string { return r.path }

// Write replaces the record. The file is swapped in with a rename so that
// concurrent readers see either the old or the new record.
func (r *Repository[T]) Write(v *T) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// Read returns the record and true, or false when no trustworthy record
// exists. Unparseable or invalid records are deleted.
func (r *Repository[T]) Read() (*T, bool, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state: %w", err)
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, false, r.Delete()
	}
	if r.validate != nil {
		if err := r.validate(v); err != nil {
			return nil, false, r.Delete()
		}
	}
	return v, true, nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (r *Repository[T]) Delete() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}
