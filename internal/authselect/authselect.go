// Package authselect drives the system authentication-stack selector:
// choosing the active PAM/NSS profile, toggling profile features, and
// migrating hosts from the legacy authconfig bookkeeping.
package authselect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/idmforge/idmd/internal/execute"
)

// automountFeature points automount at LDAP for non-SSSD setups.
const automountFeature = "with-custom-automount"

// authconfigKeys are the legacy state keys cleared during migration.
var authconfigKeys = []string{"ldap", "krb5", "sssd", "sssdauth", "mkhomedir"}

// Config holds the selector tooling.
type Config struct {
	// AuthselectPath is the authselect binary.
	// Default: /usr/bin/authselect
	AuthselectPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.AuthselectPath == "" {
		c.AuthselectPath = "/usr/bin/authselect"
	}
}

// StateStore is the slice of the state store the selector tasks need.
type StateStore interface {
	BackupState(module, key, value string) error
	RestoreState(module, key string) (string, bool, error)
	GetState(module, key string) (string, bool)
}

// Tool executes authentication-stack selection tasks.
type Tool struct {
	cfg    Config
	runner execute.Runner
	logger *slog.Logger
}

// New creates a Tool with defaults applied.
func New(cfg Config, runner execute.Runner, logger *slog.Logger) *Tool {
	cfg.ApplyDefaults()
	return &Tool{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "authselect"),
	}
}

// Select activates the named profile with the given features.
func (t *Tool) Select(ctx context.Context, profile string, features []string, force bool) error {
	args := append([]string{"select", profile}, features...)
	if force {
		args = append(args, "--force")
	}
	if _, err := t.runner.Run(ctx, t.cfg.AuthselectPath, args...); err != nil {
		return fmt.Errorf("authselect: select %s: %w", profile, err)
	}
	t.logger.Info("authentication profile selected", "profile", profile, "features", features)
	return nil
}

// EnableFeature turns on a feature of the active profile.
func (t *Tool) EnableFeature(ctx context.Context, feature string) error {
	if _, err := t.runner.Run(ctx, t.cfg.AuthselectPath, "enable-feature", feature); err != nil {
		return fmt.Errorf("authselect: enable-feature %s: %w", feature, err)
	}
	return nil
}

// DisableFeature turns off a feature of the active profile.
func (t *Tool) DisableFeature(ctx context.Context, feature string) error {
	if _, err := t.runner.Run(ctx, t.cfg.AuthselectPath, "disable-feature", feature); err != nil {
		return fmt.Errorf("authselect: disable-feature %s: %w", feature, err)
	}
	return nil
}

// EnableLDAPAutomount points automount at LDAP. For non-SSSD setups only.
func (t *Tool) EnableLDAPAutomount(ctx context.Context) error {
	return t.EnableFeature(ctx, automountFeature)
}

// DisableLDAPAutomount reverts EnableLDAPAutomount.
func (t *Tool) DisableLDAPAutomount(ctx context.Context) error {
	return t.DisableFeature(ctx, automountFeature)
}

// MigrateFromAuthconfig moves a host configured by the legacy authconfig
// tool onto the sssd authselect profile, carrying over the mkhomedir
// choice, clearing the legacy state keys and recording the new profile in
// the state store.
func (t *Tool) MigrateFromAuthconfig(ctx context.Context, sstore StateStore) error {
	mkhomedir, _ := sstore.GetState("authconfig", "mkhomedir")
	wasMkhomedir := mkhomedir == "true"

	features := []string{"with-sudo"}
	if wasMkhomedir {
		features = append(features, "with-mkhomedir")
	}
	if err := t.Select(ctx, "sssd", features, true); err != nil {
		return err
	}

	for _, key := range authconfigKeys {
		if _, _, err := sstore.RestoreState("authconfig", key); err != nil {
			return err
		}
	}

	if err := sstore.BackupState("authselect", "profile", "sssd"); err != nil {
		return err
	}
	if err := sstore.BackupState("authselect", "features_list", ""); err != nil {
		return err
	}
	return sstore.BackupState("authselect", "mkhomedir", fmt.Sprintf("%t", wasMkhomedir))
}
