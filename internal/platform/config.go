package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/idmforge/idmd/internal/authselect"
	"github.com/idmforge/idmd/internal/dnsconf"
	"github.com/idmforge/idmd/internal/hostinfo"
	"github.com/idmforge/idmd/internal/httpd"
	"github.com/idmforge/idmd/internal/pkcs11"
	"github.com/idmforge/idmd/internal/selinux"
	"github.com/idmforge/idmd/internal/truststore"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultDataDir is the default data directory.
	DefaultDataDir = "/var/lib/idmd"
)

// Config is the top-level configuration for the platform task layer.
// It aggregates all subsystem configurations and is populated from
// a YAML configuration file via ParseConfig.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// DataDir is the directory for persistent agent data.
	// Default: /var/lib/idmd
	DataDir string `yaml:"data_dir"`

	// BackupDir is the directory holding pre-change copies of system
	// files. Default: <DataDir>/sysrestore
	BackupDir string `yaml:"backup_dir"`

	// StatePath is the key-value state file recording pre-change system
	// facts. Default: <DataDir>/sysrestore.state.yaml
	StatePath string `yaml:"state_path"`

	SELinux selinux.Config    `yaml:"selinux"`
	DNS     dnsconf.Config    `yaml:"dns"`
	PKCS11  pkcs11.Config     `yaml:"pkcs11"`
	Trust   truststore.Config `yaml:"trust"`
	HTTPD   httpd.Config      `yaml:"httpd"`
	Host    hostinfo.Config   `yaml:"host"`
	Auth    authselect.Config `yaml:"auth"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, "sysrestore")
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(c.DataDir, "sysrestore.state.yaml")
	}
	c.SELinux.ApplyDefaults()
	c.DNS.ApplyDefaults()
	c.PKCS11.ApplyDefaults()
	c.Trust.ApplyDefaults()
	c.HTTPD.ApplyDefaults()
	c.Host.ApplyDefaults()
	c.Auth.ApplyDefaults()
}

// Validate checks the configuration for invalid values. Call after
// ApplyDefaults.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("platform: config: invalid log_level %q", c.LogLevel)
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("platform: config: data_dir must be absolute, got %q", c.DataDir)
	}
	return nil
}

// ParseConfig reads a YAML configuration file and returns a Config.
// It applies defaults and validates the configuration.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("platform: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
