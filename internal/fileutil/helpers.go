// Package fileutil holds small filesystem helpers shared by the stores,
// the sidecar tag writer, and the daemon: atomic file replacement and
// advisory file locks.
package fileutil

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will contain path.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// ReplaceFileAtomically moves tmpPath over targetPath. Rename is atomic
// on POSIX filesystems; where it refuses to replace an existing file,
// the target is removed first and the rename retried.
func ReplaceFileAtomically(tmpPath, targetPath string) error {
	if err := os.Rename(tmpPath, targetPath); err == nil {
		return nil
	}

	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return os.Rename(tmpPath, targetPath)
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := ReplaceFileAtomically(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
