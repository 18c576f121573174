// Package fsutil holds the crash-safe file helpers used by the file-backed
// stores. Readers never observe a partially written file.
package fsutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0750
	filePerm = 0600
)

// WriteFileAtomic replaces path with data. The bytes go to a temporary file in
// the same directory, are synced, and are renamed over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	err = func() error {
		if _, err := tmp.Write(data); err != nil {
			return fmt.Errorf("failed to write temporary file: %w", err)
		}
		if err := tmp.Chmod(filePerm); err != nil {
			return fmt.Errorf("failed to set file mode: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("failed to sync temporary file: %w", err)
		}
		return nil
	}()
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temporary file: %w", closeErr)
	}
	if err == nil {
		if renameErr := os.Rename(tmpPath, path); renameErr != nil {
			err = fmt.Errorf("failed to rename %s: %w", filepath.Base(path), renameErr)
		}
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteJSON writes v as indented JSON through WriteFileAtomic
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data)
}

// ReadJSON decodes path into v. It reports false without error when the file
// does not exist yet.
func ReadJSON(path string, v any) (bool, error) {
	// #nosec G304 -- paths come from configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
