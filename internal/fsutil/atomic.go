// Package fsutil provides small file-writing helpers shared by the
// platform task packages.
package fsutil

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to dir/name atomically using a temp file and
// rename. This ensures readers never observe a partially-written file. Used
// for the backup and state indices, where a torn write would lose restore
// bookkeeping.
func WriteFileAtomic(dir, name string, data []byte, perm os.FileMode) error {
	targetPath := filepath.Join(dir, name)
	tmpPath := filepath.Join(dir, ".tmp-"+name)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath) // clean up on error

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, targetPath)
}

// ReplaceFile rewrites path in full with the given permissions applied at
// creation, so the file never exists with looser permissions than requested.
// System config files are rewritten in place rather than renamed into
// position: consumers open them by name and the installer context is
// single-shot.
func ReplaceFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// O_CREAT permissions are masked by umask and skipped entirely for
	// files that already exist; chmod to the exact requested mode.
	return os.Chmod(path, perm)
}
