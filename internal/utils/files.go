package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic streams r into a temporary file next to path and renames it
// into place once it is synced and closed, so a partial write is never visible
// under the final name.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return written, fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return written, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return written, nil
}

// FileExists reports whether path exists. Errors other than "not exist" are returned.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
