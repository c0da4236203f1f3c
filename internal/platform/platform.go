// Package platform ties the per-concern task packages together behind a
// single Tasks facade, the surface the installer and the idmd CLI drive.
package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/idmforge/idmd/internal/authselect"
	"github.com/idmforge/idmd/internal/dnsconf"
	"github.com/idmforge/idmd/internal/execute"
	"github.com/idmforge/idmd/internal/hostinfo"
	"github.com/idmforge/idmd/internal/httpd"
	"github.com/idmforge/idmd/internal/pkcs11"
	"github.com/idmforge/idmd/internal/selinux"
	"github.com/idmforge/idmd/internal/services"
	"github.com/idmforge/idmd/internal/sysrestore"
	"github.com/idmforge/idmd/internal/truststore"
)

// selinuxStateModule is the state-store module recording pre-change
// boolean values.
const selinuxStateModule = "selinux"

// Tasks is the platform task facade. All collaborators are injected at
// construction; the per-concern components are exported so callers can
// reach past the composite helpers when they need a single operation.
type Tasks struct {
	Runner   execute.Runner
	Registry services.Registry
	Files    *sysrestore.FileStore
	State    *sysrestore.StateStore
	SELinux  *selinux.SELinux
	DNS      *dnsconf.Configurator
	PKCS11   *pkcs11.Manager
	Trust    *truststore.Store
	HTTPD    *httpd.Configurator
	Host     *hostinfo.Host
	Auth     *authselect.Tool

	cfg    Config
	logger *slog.Logger
}

// New builds the full task layer from cfg. The backup and state stores
// are opened (and their directories created) immediately.
func New(cfg Config, logger *slog.Logger) (*Tasks, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runner := execute.NewRunner(logger)
	registry := services.NewSystemdRegistry(runner, logger)

	files, err := sysrestore.NewFileStore(cfg.BackupDir, logger)
	if err != nil {
		return nil, err
	}
	state, err := sysrestore.NewStateStore(cfg.StatePath, logger)
	if err != nil {
		return nil, err
	}

	sel := selinux.New(cfg.SELinux, runner, logger)

	nm, ok := registry.Lookup(services.NetworkManager)
	if !ok {
		return nil, fmt.Errorf("platform: unknown service %q", services.NetworkManager)
	}

	return &Tasks{
		Runner:   runner,
		Registry: registry,
		Files:    files,
		State:    state,
		SELinux:  sel,
		DNS:      dnsconf.New(cfg.DNS, nm, sel, logger),
		PKCS11:   pkcs11.NewManager(cfg.PKCS11, sel, logger),
		Trust:    truststore.NewStore(cfg.Trust, runner, logger),
		HTTPD:    httpd.New(cfg.HTTPD, registry, sel, logger),
		Host:     hostinfo.New(cfg.Host, runner, logger),
		Auth:     authselect.New(cfg.Auth, runner, logger),
		cfg:      cfg,
		logger:   logger.With("component", "platform"),
	}, nil
}

// ConfigureDNSResolver points the host at the given nameservers, detecting
// whether systemd-resolved owns the stub resolver first.
func (t *Tasks) ConfigureDNSResolver(ctx context.Context, nameservers, searchdomains []string) error {
	resolved := t.resolvedEnabled(ctx)
	return t.DNS.Configure(ctx, nameservers, searchdomains, resolved, t.Files)
}

// UnconfigureDNSResolver reverts ConfigureDNSResolver.
func (t *Tasks) UnconfigureDNSResolver(ctx context.Context) error {
	return t.DNS.Unconfigure(ctx, t.Files)
}

func (t *Tasks) resolvedEnabled(ctx context.Context) bool {
	svc, ok := t.Registry.Lookup(services.SystemdResolved)
	if !ok {
		return false
	}
	return svc.IsEnabled(ctx) || svc.IsActive(ctx)
}

// SetSELinuxBooleans applies the required boolean settings, recording each
// pre-change value in the state store so Uninstall can revert them. Only
// the first recorded value per setting is kept.
func (t *Tasks) SetSELinuxBooleans(ctx context.Context, required map[string]string) (bool, error) {
	backup := func(setting, value string) {
		if _, ok := t.State.GetState(selinuxStateModule, setting); ok {
			return
		}
		if err := t.State.BackupState(selinuxStateModule, setting, value); err != nil {
			t.logger.Warn("cannot record boolean state", "setting", setting, "error", err)
		}
	}
	return t.SELinux.SetBooleans(ctx, required, backup)
}

// RestoreSELinuxBooleans puts every boolean recorded by SetSELinuxBooleans
// back to its pre-change value and clears the recorded state.
func (t *Tasks) RestoreSELinuxBooleans(ctx context.Context) error {
	recorded := t.State.ModuleState(selinuxStateModule)
	if len(recorded) == 0 {
		return nil
	}
	if _, err := t.SELinux.SetBooleans(ctx, recorded, nil); err != nil {
		return err
	}
	for setting := range recorded {
		if _, _, err := t.State.RestoreState(selinuxStateModule, setting); err != nil {
			return err
		}
	}
	return nil
}

// ConfigurePKCS11 writes the PKCS#11 module overrides, backing up any
// foreign pre-existing files.
func (t *Tasks) ConfigurePKCS11(ctx context.Context) ([]string, error) {
	return t.PKCS11.Configure(ctx, t.Files)
}

// ConfigureHTTPD writes every httpd integration fragment: the service
// drop-in, the gssproxy stanza and the WSGI module override.
func (t *Tasks) ConfigureHTTPD(ctx context.Context, apiUser string) error {
	if err := t.HTTPD.ConfigureServiceDropIn(ctx); err != nil {
		return err
	}
	if err := t.HTTPD.ConfigureGSSProxy(ctx, apiUser); err != nil {
		return err
	}
	return t.HTTPD.ConfigureWSGI(ctx)
}

// Uninstall reverts every platform change this layer can have made. Each
// step runs even when an earlier one fails; failures are aggregated into
// a single error so as much of the system as possible is restored.
func (t *Tasks) Uninstall(ctx context.Context) error {
	var result *multierror.Error

	if err := t.RestoreSELinuxBooleans(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := t.PKCS11.Restore(t.Files); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.DNS.Unconfigure(ctx, t.Files); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.HTTPD.RemoveServiceDropIn(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if changed, err := t.Trust.RemoveCACerts(); err != nil {
		result = multierror.Append(result, err)
	} else if changed {
		t.Trust.ReloadCAStore(ctx)
	}
	if err := t.Host.RestoreHostname(ctx, t.Files, t.State); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
