// Package services looks up and controls the system services the platform
// tasks interact with (NetworkManager, systemd-resolved, httpd, gssproxy).
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/idmforge/idmd/internal/execute"
)

// Service controls one named system service. Mutating operations are
// idempotent: repeating an operation that is already applied returns nil.
type Service interface {
	// Name returns the registry name of the service.
	Name() string

	// IsEnabled reports whether the service is enabled to start on boot.
	IsEnabled(ctx context.Context) bool

	// IsActive reports whether the service is currently running.
	IsActive(ctx context.Context) bool

	// ReloadOrRestart reloads the service config, restarting if needed.
	ReloadOrRestart(ctx context.Context) error

	// Restart restarts the service.
	Restart(ctx context.Context) error

	// Stop stops the service. Stopping an inactive service returns nil.
	Stop(ctx context.Context) error
}

// Registry resolves registry names to Service handles.
type Registry interface {
	// Lookup returns the named service. The second return is false if the
	// name is not known to the registry.
	Lookup(name string) (Service, bool)

	// DaemonReload tells the service manager to reload its unit files.
	DaemonReload(ctx context.Context) error
}

// Known registry names.
const (
	NetworkManager  = "NetworkManager"
	SystemdResolved = "systemd-resolved"
	HTTPD           = "httpd"
	GSSProxy        = "gssproxy"
)

// knownUnits maps registry names to systemd unit names.
var knownUnits = map[string]string{
	NetworkManager:  "NetworkManager.service",
	SystemdResolved: "systemd-resolved.service",
	HTTPD:           "httpd.service",
	GSSProxy:        "gssproxy.service",
}

const systemctl = "systemctl"

// systemdRegistry implements Registry on top of systemctl.
type systemdRegistry struct {
	runner execute.Runner
	logger *slog.Logger
}

// NewSystemdRegistry returns a Registry backed by the real systemctl binary.
func NewSystemdRegistry(runner execute.Runner, logger *slog.Logger) Registry {
	return &systemdRegistry{
		runner: runner,
		logger: logger.With("component", "services"),
	}
}

func (r *systemdRegistry) Lookup(name string) (Service, bool) {
	unit, ok := knownUnits[name]
	if !ok {
		return nil, false
	}
	return &systemdService{name: name, unit: unit, runner: r.runner, logger: r.logger}, true
}

func (r *systemdRegistry) DaemonReload(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, systemctl, "--system", "daemon-reload"); err != nil {
		return fmt.Errorf("services: daemon-reload: %w", err)
	}
	return nil
}

// systemdService implements Service for one systemd unit.
type systemdService struct {
	name   string
	unit   string
	runner execute.Runner
	logger *slog.Logger
}

func (s *systemdService) Name() string {
	return s.name
}

func (s *systemdService) IsEnabled(ctx context.Context) bool {
	// is-enabled exits non-zero for disabled, masked and unknown units;
	// all of those count as "not enabled".
	_, err := s.runner.Run(ctx, systemctl, "is-enabled", "--quiet", s.unit)
	return err == nil
}

func (s *systemdService) IsActive(ctx context.Context) bool {
	_, err := s.runner.Run(ctx, systemctl, "is-active", "--quiet", s.unit)
	return err == nil
}

func (s *systemdService) ReloadOrRestart(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, systemctl, "reload-or-restart", s.unit); err != nil {
		return fmt.Errorf("services: reload-or-restart %s: %w", s.unit, err)
	}
	s.logger.Debug("service reloaded", "unit", s.unit)
	return nil
}

func (s *systemdService) Restart(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, systemctl, "restart", s.unit); err != nil {
		return fmt.Errorf("services: restart %s: %w", s.unit, err)
	}
	s.logger.Debug("service restarted", "unit", s.unit)
	return nil
}

func (s *systemdService) Stop(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, systemctl, "stop", s.unit); err != nil {
		return fmt.Errorf("services: stop %s: %w", s.unit, err)
	}
	s.logger.Debug("service stopped", "unit", s.unit)
	return nil
}
