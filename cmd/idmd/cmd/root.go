// Package cmd implements the idmd CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/idmforge/idmd/internal/platform"
)

var (
	cfgFile  string
	logLevel string
)

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("idmd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "idmd",
	Short: "idmd manages identity-management host integration",
	Long: "idmd applies and reverts the platform-level host configuration an\n" +
		"identity-management deployment needs: DNS resolver setup, SELinux\n" +
		"booleans, PKCS#11 module overrides, trust-store objects, httpd\n" +
		"integration fragments and authentication-profile selection.",
	// No Run function — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/idmd/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("idmd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadTasks builds the platform task layer from the config file; a missing
// file means defaults. The --log-level flag beats the config value.
func loadTasks() (*platform.Tasks, error) {
	var cfg platform.Config
	parsed, err := platform.ParseConfig(cfgFile)
	switch {
	case err == nil:
		cfg = *parsed
	case errors.Is(err, os.ErrNotExist):
		cfg.ApplyDefaults()
	default:
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return platform.New(cfg, setupLogger(cfg.LogLevel))
}
