// Package selinux wraps the SELinux policy utilities: the enabled probe,
// file context restoration, and persistent boolean settings.
package selinux

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/idmforge/idmd/internal/execute"
)

// selinuxfsMagic is the f_type of a mounted selinuxfs (SELINUX_MAGIC).
const selinuxfsMagic = 0xf97cff8c

// Config holds the utility and filesystem paths used by the SELinux tasks.
type Config struct {
	// SELinuxEnabledPath is the selinuxenabled binary.
	// Default: /usr/sbin/selinuxenabled
	SELinuxEnabledPath string

	// RestoreconPath is the restorecon binary.
	// Default: /usr/sbin/restorecon
	RestoreconPath string

	// GetseboolPath is the getsebool binary.
	// Default: /usr/sbin/getsebool
	GetseboolPath string

	// SetseboolPath is the setsebool binary.
	// Default: /usr/sbin/setsebool
	SetseboolPath string

	// FSMountPath is the selinuxfs mount point probed before any utility
	// is executed. Default: /sys/fs/selinux
	FSMountPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.SELinuxEnabledPath == "" {
		c.SELinuxEnabledPath = "/usr/sbin/selinuxenabled"
	}
	if c.RestoreconPath == "" {
		c.RestoreconPath = "/usr/sbin/restorecon"
	}
	if c.GetseboolPath == "" {
		c.GetseboolPath = "/usr/sbin/getsebool"
	}
	if c.SetseboolPath == "" {
		c.SetseboolPath = "/usr/sbin/setsebool"
	}
	if c.FSMountPath == "" {
		c.FSMountPath = "/sys/fs/selinux"
	}
}

// SELinux executes SELinux-related platform tasks.
type SELinux struct {
	cfg    Config
	runner execute.Runner
	logger *slog.Logger
}

// New creates a SELinux task handle with defaults applied.
func New(cfg Config, runner execute.Runner, logger *slog.Logger) *SELinux {
	cfg.ApplyDefaults()
	return &SELinux{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "selinux"),
	}
}

// Enabled reports whether SELinux is available and enabled on this host.
// A missing selinuxenabled binary or an unmounted selinuxfs both mean
// "not enabled", never an error.
func (s *SELinux) Enabled(ctx context.Context) bool {
	// No selinuxfs mounted means the kernel has no active policy; skip
	// the child process entirely.
	var st unix.Statfs_t
	if err := unix.Statfs(s.cfg.FSMountPath, &st); err == nil && uint32(st.Type) != selinuxfsMagic {
		return false
	}

	// selinuxenabled exits 0 when enabled and 1 when disabled; a missing
	// binary also counts as disabled.
	_, err := s.runner.Run(ctx, s.cfg.SELinuxEnabledPath)
	return err == nil
}

// CheckStatus verifies that the tooling needed on an SELinux-enabled host
// is present. It returns (false, nil) when SELinux is disabled, and an
// error with remediation instructions when SELinux is enabled but
// restorecon is missing.
func (s *SELinux) CheckStatus(ctx context.Context) (bool, error) {
	if !s.Enabled(ctx) {
		return false, nil
	}
	if _, err := os.Stat(s.cfg.RestoreconPath); err != nil {
		return false, fmt.Errorf(
			"selinux: SELinux is enabled but %s does not exist; "+
				"install the policycoreutils package and start the installation again",
			s.cfg.RestoreconPath)
	}
	return true, nil
}

// RestoreContext resets the SELinux security context of path to the policy
// default. restorecon's return values are not reliable, so failures are
// logged and swallowed; this is an advisory operation. With force set, the
// full context including user, role and range is reset.
func (s *SELinux) RestoreContext(ctx context.Context, path string, force bool) {
	if !s.Enabled(ctx) {
		return
	}
	if _, err := os.Stat(s.cfg.RestoreconPath); err != nil {
		return
	}

	args := []string{}
	if force {
		args = append(args, "-F")
	}
	args = append(args, path)
	if _, err := s.runner.Run(ctx, s.cfg.RestoreconPath, args...); err != nil {
		s.logger.Warn("restorecon failed", "path", path, "error", err)
	}
}
