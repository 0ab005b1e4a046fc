// Package statefile reads and atomically replaces small JSON snapshot files.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrVersion is returned when a snapshot was written by an incompatible version.
var ErrVersion = errors.New("statefile: unsupported version")

type envelope struct {
	Version int             `json:"version"`
	SavedAt int64           `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// File is a versioned snapshot at a fixed path. Writes are serialized.
type File struct {
	Path    string
	Version int

	mu sync.Mutex
}

func New(path string, version int) *File {
	return &File{Path: path, Version: version}
}

// Load decodes the snapshot into v. A missing or empty file leaves v untouched
// and reports false.
func (f *File) Load(v any) (bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("statefile: decode %s: %w", f.Path, err)
	}
	if env.Version != f.Version {
		return false, ErrVersion
	}
	if len(env.Data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, fmt.Errorf("statefile: decode %s: %w", f.Path, err)
	}
	return true, nil
}

// Save writes v through a 0600 temp file in the same directory, then renames it
// over the target.
func (f *File) Save(v any, nowMillis int64) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}
	data, err := json.MarshalIndent(envelope{Version: f.Version, SavedAt: nowMillis, Data: payload}, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("statefile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statefile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statefile: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statefile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statefile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// Remove deletes the snapshot; a missing file is not an error.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
