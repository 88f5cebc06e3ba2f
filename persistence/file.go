package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/SalmanAh/sound2scene/index"
)

// SaveToFile atomically writes a snapshot of the index to path.
//
// The snapshot is written to a temporary file in the same directory, fsynced,
// and renamed over path. Readers of path therefore only ever observe a
// complete snapshot.
func SaveToFile(path string, f *index.Flat, optFns ...func(o *Options)) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := Save(tmp, f, optFns...); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("persistence: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persistence: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persistence: rename snapshot: %w", err)
	}

	return syncDir(dir)
}

// LoadFromFile reads a snapshot from path and rebuilds the index.
func LoadFromFile(path string) (*index.Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open snapshot: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// syncDir fsyncs the directory so the rename itself is durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("persistence: open directory: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("persistence: sync directory: %w", err)
	}
	return nil
}
