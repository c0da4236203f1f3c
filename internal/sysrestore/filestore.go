// Package sysrestore tracks pre-installation system state so the
// uninstaller can put files and settings back the way it found them.
//
// Two stores are provided: a FileStore that keeps full copies of config
// files, and a StateStore that keeps (module, key) → value records. Both
// persist their bookkeeping as YAML under a directory owned by the caller.
package sysrestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/idmforge/idmd/internal/fsutil"
)

const fileIndexName = "files.yaml"

// fileEntry records one backed-up file in the index.
type fileEntry struct {
	// Path is the original absolute path of the file.
	Path string `yaml:"path"`

	// Mode is the original permission bits, restored with the content.
	Mode os.FileMode `yaml:"mode"`
}

// FileStore keeps backup copies of system files keyed by their original
// path. The first backup of a path wins; later calls are no-ops, so the
// restore always yields the pre-installation content.
type FileStore struct {
	dir    string
	logger *slog.Logger
	index  map[string]fileEntry // backup name → entry
}

// NewFileStore opens (or creates) a file backup store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sysrestore: create backup dir: %w", err)
	}

	s := &FileStore{
		dir:    dir,
		logger: logger.With("component", "sysrestore"),
		index:  make(map[string]fileEntry),
	}

	data, err := os.ReadFile(filepath.Join(dir, fileIndexName))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sysrestore: read file index: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.index); err != nil {
		return nil, fmt.Errorf("sysrestore: parse file index: %w", err)
	}
	return s, nil
}

// HasFile reports whether path has already been backed up.
func (s *FileStore) HasFile(path string) bool {
	_, ok := s.index[backupName(path)]
	return ok
}

// BackupFile copies path into the store. If the path is already stored the
// call is a no-op: the oldest copy is the one that predates installation.
func (s *FileStore) BackupFile(path string) error {
	name := backupName(path)
	if _, ok := s.index[name]; ok {
		s.logger.Debug("file already backed up", "path", path)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("sysrestore: stat %s: %w", path, err)
	}
	if err := copyFile(path, filepath.Join(s.dir, name), 0o600); err != nil {
		return fmt.Errorf("sysrestore: backup %s: %w", path, err)
	}

	s.index[name] = fileEntry{Path: path, Mode: info.Mode().Perm()}
	if err := s.saveIndex(); err != nil {
		return err
	}
	s.logger.Info("file backed up", "path", path)
	return nil
}

// RestoreFile writes the stored copy back to its original path with its
// original permissions and drops it from the index. A path that was never
// backed up is already in its pre-installation state: restore reports
// (false, nil) and does nothing.
func (s *FileStore) RestoreFile(path string) (bool, error) {
	name := backupName(path)
	entry, ok := s.index[name]
	if !ok {
		s.logger.Debug("no backup to restore", "path", path)
		return false, nil
	}

	backupPath := filepath.Join(s.dir, name)
	if err := copyFile(backupPath, entry.Path, entry.Mode); err != nil {
		return false, fmt.Errorf("sysrestore: restore %s: %w", path, err)
	}

	delete(s.index, name)
	if err := s.saveIndex(); err != nil {
		return false, err
	}
	if err := os.Remove(backupPath); err != nil {
		s.logger.Warn("remove backup copy", "path", backupPath, "error", err)
	}
	s.logger.Info("file restored", "path", path)
	return true, nil
}

func (s *FileStore) saveIndex() error {
	data, err := yaml.Marshal(s.index)
	if err != nil {
		return fmt.Errorf("sysrestore: encode file index: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.dir, fileIndexName, data, 0o600); err != nil {
		return fmt.Errorf("sysrestore: write file index: %w", err)
	}
	return nil
}

// backupName derives a stable, collision-free store name from a path.
func backupName(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:8]) + "-" + filepath.Base(path)
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}
