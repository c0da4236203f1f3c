// Package hostinfo handles host identity and kernel facts: hostname backup
// and restore, the NIS domain, and the container, FIPS and IPv6 probes.
package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/idmforge/idmd/internal/execute"
	"github.com/idmforge/idmd/internal/fsutil"
)

// Config holds the file and utility paths used by the host tasks.
type Config struct {
	// HostnamePath is the static hostname file. Default: /etc/hostname
	HostnamePath string

	// SysconfigNetworkPath carries the NISDOMAIN setting.
	// Default: /etc/sysconfig/network
	SysconfigNetworkPath string

	// HostnamectlPath is the hostname setter binary.
	// Default: /usr/bin/hostnamectl
	HostnamectlPath string

	// DetectVirtPath is the virtualization detector binary.
	// Default: /usr/bin/systemd-detect-virt
	DetectVirtPath string

	// FIPSModePath is the kernel FIPS flag.
	// Default: /proc/sys/crypto/fips_enabled
	FIPSModePath string

	// IfInet6Path is the kernel IPv6 interface table.
	// Default: /proc/net/if_inet6
	IfInet6Path string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HostnamePath == "" {
		c.HostnamePath = "/etc/hostname"
	}
	if c.SysconfigNetworkPath == "" {
		c.SysconfigNetworkPath = "/etc/sysconfig/network"
	}
	if c.HostnamectlPath == "" {
		c.HostnamectlPath = "/usr/bin/hostnamectl"
	}
	if c.DetectVirtPath == "" {
		c.DetectVirtPath = "/usr/bin/systemd-detect-virt"
	}
	if c.FIPSModePath == "" {
		c.FIPSModePath = "/proc/sys/crypto/fips_enabled"
	}
	if c.IfInet6Path == "" {
		c.IfInet6Path = "/proc/net/if_inet6"
	}
}

// FileBackup is the slice of the backup store the host tasks need.
type FileBackup interface {
	HasFile(path string) bool
	BackupFile(path string) error
	RestoreFile(path string) (bool, error)
}

// StateStore is the slice of the state store the host tasks need.
type StateStore interface {
	BackupState(module, key, value string) error
	RestoreState(module, key string) (string, bool, error)
}

// Host executes host identity tasks.
type Host struct {
	cfg    Config
	runner execute.Runner
	logger *slog.Logger

	// interfaceAddrs is swapped in tests.
	interfaceAddrs func() ([]net.Addr, error)
}

// New creates a Host task handle with defaults applied.
func New(cfg Config, runner execute.Runner, logger *slog.Logger) *Host {
	cfg.ApplyDefaults()
	return &Host{
		cfg:            cfg,
		runner:         runner,
		logger:         logger.With("component", "hostinfo"),
		interfaceAddrs: net.InterfaceAddrs,
	}
}

// BackupHostname records the current hostname file and kernel hostname so
// the uninstaller can put both back.
func (h *Host) BackupHostname(fstore FileBackup, sstore StateStore) error {
	if _, err := os.Stat(h.cfg.HostnamePath); err == nil {
		if err := fstore.BackupFile(h.cfg.HostnamePath); err != nil {
			return err
		}
	}

	name, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("hostinfo: read hostname: %w", err)
	}
	return sstore.BackupState("network", "hostname", name)
}

// SetHostname sets the system hostname through hostnamectl.
func (h *Host) SetHostname(ctx context.Context, hostname string) error {
	if _, err := h.runner.Run(ctx, h.cfg.HostnamectlPath, "set-hostname", hostname); err != nil {
		return fmt.Errorf("hostinfo: set hostname: %w", err)
	}
	return nil
}

// RestoreHostname puts back the recorded hostname and hostname file. A
// failing hostname setter is logged but does not stop the file restore.
func (h *Host) RestoreHostname(ctx context.Context, fstore FileBackup, sstore StateStore) error {
	oldName, ok, err := sstore.RestoreState("network", "hostname")
	if err != nil {
		return err
	}
	if ok {
		if err := h.SetHostname(ctx, oldName); err != nil {
			h.logger.Error("failed to restore hostname", "hostname", oldName, "error", err)
		}
	}

	if fstore.HasFile(h.cfg.HostnamePath) {
		if _, err := fstore.RestoreFile(h.cfg.HostnamePath); err != nil {
			return err
		}
	}
	return nil
}

// SetNISDomain rewrites the sysconfig network file with the given NIS
// domain, preserving all unrelated lines and dropping any previous
// NISDOMAIN entries. A missing file is treated as empty.
func (h *Host) SetNISDomain(domain string) error {
	var kept []string
	data, err := os.ReadFile(h.cfg.SysconfigNetworkPath)
	if err == nil {
		for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
			if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "NISDOMAIN") {
				continue
			}
			kept = append(kept, line)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("hostinfo: read %s: %w", h.cfg.SysconfigNetworkPath, err)
	}

	kept = append(kept, "NISDOMAIN="+domain)
	content := strings.Join(kept, "\n") + "\n"
	if err := fsutil.ReplaceFile(h.cfg.SysconfigNetworkPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("hostinfo: write %s: %w", h.cfg.SysconfigNetworkPath, err)
	}
	return nil
}

// DetectContainer returns the container runtime this host runs inside, or
// the empty string on bare metal or a full VM. The detector's exit code 1
// means "no container", not failure.
func (h *Host) DetectContainer(ctx context.Context) (string, error) {
	res, err := h.runner.Run(ctx, h.cfg.DetectVirtPath, "--container")
	if err != nil {
		if code, ok := execute.ExitCode(err); ok && code == 1 {
			return "", nil
		}
		return "", fmt.Errorf("hostinfo: detect container: %w", err)
	}
	return strings.TrimSpace(res.Output), nil
}

// FIPSEnabled reports whether the kernel runs in FIPS mode. A missing flag
// file means the host is not FIPS-enabled.
func (h *Host) FIPSEnabled() bool {
	data, err := os.ReadFile(h.cfg.FIPSModePath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) != "0"
}

// CheckIPv6Stack verifies that the kernel IPv6 stack is enabled and some
// interface has the ::1 loopback address assigned. Both conditions are
// hard requirements, reported with remediation instructions.
func (h *Host) CheckIPv6Stack() error {
	if _, err := os.Stat(h.cfg.IfInet6Path); err != nil {
		return errors.New(
			"hostinfo: IPv6 stack has to be enabled in the kernel and some " +
				"interface has to have ::1 address assigned; typically this is " +
				"the 'lo' interface. If you do not wish to use IPv6 globally, " +
				"disable it on the specific interfaces in sysctl.conf except " +
				"the 'lo' interface")
	}

	addrs, err := h.interfaceAddrs()
	if err != nil {
		return fmt.Errorf("hostinfo: list interface addresses: %w", err)
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(net.IPv6loopback) {
			return nil
		}
	}
	return errors.New(
		"hostinfo: IPv6 stack is enabled in the kernel but there is no " +
			"interface that has ::1 address assigned; add ::1 address " +
			"resolution to the 'lo' interface")
}
