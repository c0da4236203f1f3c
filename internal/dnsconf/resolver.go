// Package dnsconf configures the global DNS resolver: a NetworkManager
// drop-in when NetworkManager owns resolv.conf, a systemd-resolved handoff,
// or a static /etc/resolv.conf when neither is in charge.
package dnsconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/idmforge/idmd/internal/fsutil"
)

// Config holds the file paths written by the resolver tasks.
type Config struct {
	// ResolvConfPath is the static resolver file.
	// Default: /etc/resolv.conf
	ResolvConfPath string

	// NMDropInPath is the NetworkManager drop-in. The zzz prefix makes it
	// sort last: global-dns options do not stack and the last file wins.
	// Default: /etc/NetworkManager/conf.d/zzz-idmd.conf
	NMDropInPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ResolvConfPath == "" {
		c.ResolvConfPath = "/etc/resolv.conf"
	}
	if c.NMDropInPath == "" {
		c.NMDropInPath = "/etc/NetworkManager/conf.d/zzz-idmd.conf"
	}
}

// NetworkService is the slice of the service layer the resolver tasks need.
type NetworkService interface {
	IsEnabled(ctx context.Context) bool
	ReloadOrRestart(ctx context.Context) error
}

// Labeler resets the security label of a written file. Advisory.
type Labeler interface {
	RestoreContext(ctx context.Context, path string, force bool)
}

// FileBackup is the slice of the backup store the resolver tasks need.
type FileBackup interface {
	HasFile(path string) bool
	BackupFile(path string) error
	RestoreFile(path string) (bool, error)
}

// Configurator writes and removes the global DNS resolver configuration.
type Configurator struct {
	cfg            Config
	networkManager NetworkService
	labeler        Labeler
	logger         *slog.Logger
}

// New creates a Configurator with defaults applied. networkManager may be
// nil when no NetworkManager service is known to the host.
func New(cfg Config, networkManager NetworkService, labeler Labeler, logger *slog.Logger) *Configurator {
	cfg.ApplyDefaults()
	return &Configurator{
		cfg:            cfg,
		networkManager: networkManager,
		labeler:        labeler,
		logger:         logger.With("component", "dnsconf"),
	}
}

// DropInPath returns the path of the managed NetworkManager drop-in.
func (c *Configurator) DropInPath() string {
	return c.cfg.NMDropInPath
}

// Configure points the global resolver at the given nameservers and search
// domains. The pre-change resolv.conf is backed up once if a store is
// supplied. With resolve1Enabled the configuration is pushed to
// systemd-resolved through NetworkManager; otherwise NetworkManager
// rewrites resolv.conf itself, and if NetworkManager is not enabled either,
// a static resolv.conf is written directly.
func (c *Configurator) Configure(ctx context.Context, nameservers, searchdomains []string, resolve1Enabled bool, fstore FileBackup) error {
	if len(nameservers) == 0 {
		return errors.New("dnsconf: no nameservers given")
	}
	if len(searchdomains) == 0 {
		return errors.New("dnsconf: no search domains given")
	}

	if fstore != nil && !fstore.HasFile(c.cfg.ResolvConfPath) {
		if err := fstore.BackupFile(c.cfg.ResolvConfPath); err != nil {
			return err
		}
	}

	nmEnabled := c.networkManager != nil && c.networkManager.IsEnabled(ctx)
	if nmEnabled {
		c.logger.Debug("NetworkManager is enabled, writing drop-in", "path", c.cfg.NMDropInPath)
		if err := c.writeNMDropIn(ctx, nameservers, searchdomains, resolve1Enabled); err != nil {
			return err
		}
		if err := c.networkManager.ReloadOrRestart(ctx); err != nil {
			return err
		}
	}

	if !resolve1Enabled && !nmEnabled {
		// Neither NetworkManager nor systemd-resolved is in charge;
		// write resolv.conf directly.
		c.logger.Debug("writing static resolver file", "path", c.cfg.ResolvConfPath)
		if err := c.writeStaticResolvConf(ctx, nameservers, searchdomains); err != nil {
			return err
		}
	}

	return nil
}

// Unconfigure removes the NetworkManager drop-in and restores the original
// resolv.conf from the backup store.
func (c *Configurator) Unconfigure(ctx context.Context, fstore FileBackup) error {
	if _, err := os.Stat(c.cfg.NMDropInPath); err == nil {
		if err := os.Remove(c.cfg.NMDropInPath); err != nil {
			return fmt.Errorf("dnsconf: remove %s: %w", c.cfg.NMDropInPath, err)
		}
		c.logger.Debug("removed NetworkManager drop-in", "path", c.cfg.NMDropInPath)
		if c.networkManager != nil && c.networkManager.IsEnabled(ctx) {
			if err := c.networkManager.ReloadOrRestart(ctx); err != nil {
				return err
			}
		}
	}

	if fstore != nil {
		if _, err := fstore.RestoreFile(c.cfg.ResolvConfPath); err != nil {
			return err
		}
	}
	return nil
}

func (c *Configurator) writeNMDropIn(ctx context.Context, nameservers, searchdomains []string, resolve1Enabled bool) error {
	// With systemd-resolved active the DNS configuration is pushed there;
	// otherwise NetworkManager updates resolv.conf directly.
	dnsProcessing := "default"
	if resolve1Enabled {
		dnsProcessing = "systemd-resolved"
	}

	content := fmt.Sprintf(`# auto-generated by idmd installer
[main]
dns=%s

[global-dns]
searches=%s

[global-dns-domain-*]
servers=%s
`,
		dnsProcessing,
		strings.Join(searchdomains, ","),
		strings.Join(nameservers, ","))

	if err := fsutil.ReplaceFile(c.cfg.NMDropInPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("dnsconf: write %s: %w", c.cfg.NMDropInPath, err)
	}
	if c.labeler != nil {
		c.labeler.RestoreContext(ctx, c.cfg.NMDropInPath, false)
	}
	return nil
}

func (c *Configurator) writeStaticResolvConf(ctx context.Context, nameservers, searchdomains []string) error {
	// The search line comes first; resolver tooling that only reads the
	// head of the file must see it before the nameserver list.
	var b strings.Builder
	b.WriteString("search " + strings.Join(searchdomains, " ") + "\n")
	for _, nameserver := range nameservers {
		b.WriteString("nameserver " + nameserver + "\n")
	}

	if err := fsutil.ReplaceFile(c.cfg.ResolvConfPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("dnsconf: write %s: %w", c.cfg.ResolvConfPath, err)
	}
	if c.labeler != nil {
		c.labeler.RestoreContext(ctx, c.cfg.ResolvConfPath, false)
	}
	return nil
}
