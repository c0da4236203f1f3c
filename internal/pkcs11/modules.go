// Package pkcs11 manages per-module PKCS#11 configuration overrides under
// /etc/pkcs11/modules, used to keep softhsm2 out of the p11-kit proxy.
package pkcs11

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/idmforge/idmd/internal/fsutil"
)

// marker identifies files generated by this installer; files carrying it
// are never backed up as user configuration.
const marker = "# created by idmd installer"

// Module describes one PKCS#11 module override.
type Module struct {
	// Name is the base filename, without the .module suffix.
	Name string

	// Path is the module shared object.
	Path string

	// DisableIn lists the consumers the module is disabled in; disabling
	// in p11-kit-proxy stops proxying of the module, see pkcs11.conf(5).
	DisableIn []string
}

// Config holds the module table and target directory.
type Config struct {
	// ModulesDir is the override directory. Default: /etc/pkcs11/modules
	ModulesDir string

	// Modules are the overrides to manage. Default: softhsm2 disabled in
	// p11-kit-proxy.
	Modules []Module
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ModulesDir == "" {
		c.ModulesDir = "/etc/pkcs11/modules"
	}
	if c.Modules == nil {
		c.Modules = []Module{
			{
				Name:      "softhsm2",
				Path:      "/usr/lib64/pkcs11/libsofthsm2.so",
				DisableIn: []string{"p11-kit-proxy"},
			},
		}
	}
}

// FileBackup is the slice of the backup store the module tasks need.
type FileBackup interface {
	HasFile(path string) bool
	BackupFile(path string) error
	RestoreFile(path string) (bool, error)
}

// Labeler resets the security label of a written file. Advisory.
type Labeler interface {
	RestoreContext(ctx context.Context, path string, force bool)
}

// Manager writes and removes the PKCS#11 module overrides.
type Manager struct {
	cfg     Config
	labeler Labeler
	logger  *slog.Logger
}

// NewManager creates a Manager with defaults applied.
func NewManager(cfg Config, labeler Labeler, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:     cfg,
		labeler: labeler,
		logger:  logger.With("component", "pkcs11"),
	}
}

// ModulePaths returns the override file paths this manager owns.
func (m *Manager) ModulePaths() []string {
	paths := make([]string, 0, len(m.cfg.Modules))
	for _, mod := range m.cfg.Modules {
		paths = append(paths, m.modulePath(mod))
	}
	return paths
}

// Configure writes a disable file for each managed module and returns the
// written paths. A pre-existing file is backed up first, but only once, and
// only if it is genuine user configuration rather than a file this
// installer generated on an earlier run.
func (m *Manager) Configure(ctx context.Context, fstore FileBackup) ([]string, error) {
	var written []string
	for _, mod := range m.cfg.Modules {
		path := m.modulePath(mod)

		if content, err := os.ReadFile(path); err == nil {
			ours := strings.Contains(string(content), "idmd")
			if !ours && !fstore.HasFile(path) {
				m.logger.Debug("backing up existing module config", "path", path)
				if err := fstore.BackupFile(path); err != nil {
					return written, err
				}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return written, fmt.Errorf("pkcs11: read %s: %w", path, err)
		}

		content := marker + "\n" +
			"module: " + mod.Path + "\n" +
			// see pkcs11.conf(5)
			"disable-in: " + strings.Join(mod.DisableIn, ", ") + "\n"
		if err := fsutil.ReplaceFile(path, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("pkcs11: write %s: %w", path, err)
		}
		if m.labeler != nil {
			m.labeler.RestoreContext(ctx, path, false)
		}
		m.logger.Debug("created module config", "path", path)
		written = append(written, path)
	}
	return written, nil
}

// Restore removes the generated disable files and puts back any backed-up
// originals. It returns the paths that were actually removed.
func (m *Manager) Restore(fstore FileBackup) ([]string, error) {
	var removed []string
	for _, mod := range m.cfg.Modules {
		path := m.modulePath(mod)

		err := os.Remove(path)
		switch {
		case err == nil:
			removed = append(removed, path)
		case !errors.Is(err, os.ErrNotExist):
			return removed, fmt.Errorf("pkcs11: remove %s: %w", path, err)
		}

		if fstore.HasFile(path) {
			if _, err := fstore.RestoreFile(path); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

func (m *Manager) modulePath(mod Module) string {
	return filepath.Join(m.cfg.ModulesDir, mod.Name+".module")
}
