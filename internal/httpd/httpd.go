// Package httpd writes the service-integration config fragments that hook
// the identity-management web stack into the host: a systemd drop-in for
// httpd, the gssproxy configuration, and the WSGI module selection.
//
// The fragments are produced from $VAR-style template files shipped under a
// share directory rather than generated inline, so packaging can override
// them without a rebuild.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/idmforge/idmd/internal/fsutil"
	"github.com/idmforge/idmd/internal/services"
)

// Config holds the template sources, destinations, and substitution inputs.
type Config struct {
	// TemplateDir holds the config fragment templates.
	// Default: /usr/share/idmd
	TemplateDir string

	// DropInDir is the systemd drop-in directory for httpd.
	// Default: /etc/systemd/system/httpd.service.d
	DropInDir string

	// DropInName is the drop-in filename. Default: idmd.conf
	DropInName string

	// GSSProxyConfPath is the gssproxy fragment destination.
	// Default: /etc/gssproxy/80-httpd.conf
	GSSProxyConfPath string

	// WSGIConfPath is the WSGI module config destination. Empty disables
	// WSGI configuration entirely.
	WSGIConfPath string

	// WSGIModule is the WSGI module line substituted into the template.
	WSGIModule string

	// KDCProxyConfigPath, KDCProxyEnvPath and KRB5CCPath are substituted
	// into the httpd drop-in.
	KDCProxyConfigPath string
	KDCProxyEnvPath    string
	KRB5CCPath         string

	// HTTPKeytabPath, HTTPDUser and SweeperSocketPath are substituted
	// into the gssproxy fragment.
	HTTPKeytabPath    string
	HTTPDUser         string
	SweeperSocketPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.TemplateDir == "" {
		c.TemplateDir = "/usr/share/idmd"
	}
	if c.DropInDir == "" {
		c.DropInDir = "/etc/systemd/system/httpd.service.d"
	}
	if c.DropInName == "" {
		c.DropInName = "idmd.conf"
	}
	if c.GSSProxyConfPath == "" {
		c.GSSProxyConfPath = "/etc/gssproxy/80-httpd.conf"
	}
	if c.KDCProxyConfigPath == "" {
		c.KDCProxyConfigPath = "/etc/idmd/kdcproxy/kdcproxy.conf"
	}
	if c.KDCProxyEnvPath == "" {
		c.KDCProxyEnvPath = "/etc/sysconfig/idmd-httpd"
	}
	if c.KRB5CCPath == "" {
		c.KRB5CCPath = "/tmp/krb5cc-httpd"
	}
	if c.HTTPKeytabPath == "" {
		c.HTTPKeytabPath = "/var/lib/idmd/gssproxy/http.keytab"
	}
	if c.HTTPDUser == "" {
		c.HTTPDUser = "apache"
	}
	if c.SweeperSocketPath == "" {
		c.SweeperSocketPath = "/var/run/idmd/ccache-sweeper.sock"
	}
}

// Labeler resets the security label of a written file. Advisory.
type Labeler interface {
	RestoreContext(ctx context.Context, path string, force bool)
}

// Configurator writes the httpd integration fragments.
type Configurator struct {
	cfg      Config
	registry services.Registry
	labeler  Labeler
	logger   *slog.Logger
}

// New creates a Configurator with defaults applied.
func New(cfg Config, registry services.Registry, labeler Labeler, logger *slog.Logger) *Configurator {
	cfg.ApplyDefaults()
	return &Configurator{
		cfg:      cfg,
		registry: registry,
		labeler:  labeler,
		logger:   logger.With("component", "httpd"),
	}
}

// DropInPath returns the destination of the httpd systemd drop-in.
func (c *Configurator) DropInPath() string {
	return filepath.Join(c.cfg.DropInDir, c.cfg.DropInName)
}

// ConfigureServiceDropIn writes the systemd drop-in for the httpd service
// and reloads the service manager so the override takes effect.
func (c *Configurator) ConfigureServiceDropIn(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.DropInDir, 0o755); err != nil {
		return fmt.Errorf("httpd: create drop-in dir: %w", err)
	}

	err := c.renderTemplate(ctx, "idmd-httpd.conf.template", c.DropInPath(), 0o644, map[string]string{
		"KDCPROXY_CONFIG": c.cfg.KDCProxyConfigPath,
		"IDMD_HTTPD_ENV":  c.cfg.KDCProxyEnvPath,
		"KRB5CC_HTTPD":    c.cfg.KRB5CCPath,
	})
	if err != nil {
		return err
	}
	return c.registry.DaemonReload(ctx)
}

// ConfigureGSSProxy writes the gssproxy fragment for the web API user. The
// file carries the keytab path and is readable by root only.
func (c *Configurator) ConfigureGSSProxy(ctx context.Context, apiUser string) error {
	return c.renderTemplate(ctx, "gssproxy.conf.template", c.cfg.GSSProxyConfPath, 0o600, map[string]string{
		"HTTP_KEYTAB":    c.cfg.HTTPKeytabPath,
		"HTTPD_USER":     c.cfg.HTTPDUser,
		"API_USER":       apiUser,
		"SWEEPER_SOCKET": c.cfg.SweeperSocketPath,
	})
}

// ConfigureWSGI selects the WSGI module for the web stack. Hosts without a
// WSGI destination configured have nothing to do.
func (c *Configurator) ConfigureWSGI(ctx context.Context) error {
	if c.cfg.WSGIConfPath == "" || c.cfg.WSGIModule == "" {
		c.logger.Info("nothing to do for WSGI configuration")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.WSGIConfPath), 0o755); err != nil {
		return fmt.Errorf("httpd: create WSGI conf dir: %w", err)
	}
	return c.renderTemplate(ctx, "idmd-httpd-wsgi.conf.template", c.cfg.WSGIConfPath, 0o644, map[string]string{
		"WSGI_MODULE": c.cfg.WSGIModule,
	})
}

// RemoveServiceDropIn deletes the httpd drop-in and reloads the service
// manager. An already-absent drop-in means there is nothing to do.
func (c *Configurator) RemoveServiceDropIn(ctx context.Context) error {
	path := c.DropInPath()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("drop-in already absent", "path", path)
			return nil
		}
		return fmt.Errorf("httpd: remove %s: %w", path, err)
	}
	return c.registry.DaemonReload(ctx)
}

// renderTemplate substitutes $VAR placeholders from vars into the named
// template and writes the result to dst. A placeholder missing from vars
// is a template error, not an empty substitution.
func (c *Configurator) renderTemplate(ctx context.Context, name, dst string, perm os.FileMode, vars map[string]string) error {
	src := filepath.Join(c.cfg.TemplateDir, name)
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("httpd: read template %s: %w", src, err)
	}

	var missing []string
	rendered := os.Expand(string(raw), func(key string) string {
		value, ok := vars[key]
		if !ok {
			missing = append(missing, key)
		}
		return value
	})
	if len(missing) > 0 {
		return fmt.Errorf("httpd: template %s references undefined variables %v", name, missing)
	}

	if err := fsutil.ReplaceFile(dst, []byte(rendered), perm); err != nil {
		return fmt.Errorf("httpd: write %s: %w", dst, err)
	}
	if c.labeler != nil {
		c.labeler.RestoreContext(ctx, dst, false)
	}
	c.logger.Debug("fragment written", "path", dst)
	return nil
}
