package truststore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/idmforge/idmd/internal/execute"
	"github.com/idmforge/idmd/internal/fsutil"
)

// Config holds the trust store paths and tooling.
type Config struct {
	// ObjectStorePath is the p11-kit module file carrying the deployment
	// CA certificates. Default: /usr/share/pki/ca-trust-source/idmd.p11-kit
	ObjectStorePath string

	// LegacyBundlePath is the flat CA bundle from older releases, removed
	// when the object store is written.
	// Default: /etc/pki/ca-trust/source/anchors/idmd-ca.crt
	LegacyBundlePath string

	// UpdateCATrustPath is the trust database refresh utility.
	// Default: /usr/bin/update-ca-trust
	UpdateCATrustPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ObjectStorePath == "" {
		c.ObjectStorePath = "/usr/share/pki/ca-trust-source/idmd.p11-kit"
	}
	if c.LegacyBundlePath == "" {
		c.LegacyBundlePath = "/etc/pki/ca-trust/source/anchors/idmd-ca.crt"
	}
	if c.UpdateCATrustPath == "" {
		c.UpdateCATrustPath = "/usr/bin/update-ca-trust"
	}
}

// Store manages the system-wide trust store files.
type Store struct {
	cfg    Config
	runner execute.Runner
	logger *slog.Logger
}

// NewStore creates a Store with defaults applied.
func NewStore(cfg Config, runner execute.Runner, logger *slog.Logger) *Store {
	cfg.ApplyDefaults()
	return &Store{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "truststore"),
	}
}

// ObjectStorePath returns the path of the managed p11-kit module file.
func (s *Store) ObjectStorePath() string {
	return s.cfg.ObjectStorePath
}

// WriteObjectStore renders the p11-kit object store for certs and writes it
// with 0644 permissions. Always reports a change when it succeeds.
func (s *Store) WriteObjectStore(certs []TrustedCert) (bool, error) {
	content, err := renderObjectStore(certs)
	if err != nil {
		return false, err
	}
	if err := fsutil.ReplaceFile(s.cfg.ObjectStorePath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("truststore: write %s: %w", s.cfg.ObjectStorePath, err)
	}
	s.logger.Debug("trust object store written",
		"path", s.cfg.ObjectStorePath, "certs", len(certs))
	return true, nil
}

// RemoveBundle deletes path and reports whether a file was actually
// removed. A missing file is not an error.
func (s *Store) RemoveBundle(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("truststore: stat %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("truststore: remove %s: %w", path, err)
	}
	s.logger.Debug("bundle removed", "path", path)
	return true, nil
}

// InsertCACerts writes the object store and drops the legacy flat bundle.
// It reports whether anything on disk changed, so the caller knows whether
// the trust database needs a refresh.
func (s *Store) InsertCACerts(certs []TrustedCert) (bool, error) {
	written, err := s.WriteObjectStore(certs)
	if err != nil {
		return false, err
	}
	removed, err := s.RemoveBundle(s.cfg.LegacyBundlePath)
	if err != nil {
		return written, err
	}
	return written || removed, nil
}

// RemoveCACerts removes both the object store and the legacy bundle,
// reporting whether anything was actually removed.
func (s *Store) RemoveCACerts() (bool, error) {
	removedStore, err := s.RemoveBundle(s.cfg.ObjectStorePath)
	if err != nil {
		return false, err
	}
	removedLegacy, err := s.RemoveBundle(s.cfg.LegacyBundlePath)
	if err != nil {
		return removedStore, err
	}
	return removedStore || removedLegacy, nil
}

// ReloadCAStore refreshes the system-wide trust database. The refresh is
// advisory: a failure is logged and reported as false but never aborts the
// calling workflow.
func (s *Store) ReloadCAStore(ctx context.Context) bool {
	if _, err := s.runner.Run(ctx, s.cfg.UpdateCATrustPath); err != nil {
		s.logger.Error("could not update systemwide CA trust database", "error", err)
		return false
	}
	s.logger.Info("systemwide CA database updated")
	return true
}
