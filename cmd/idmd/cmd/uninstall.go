package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Revert every platform change made by idmd",
	Long: "Restore recorded SELinux booleans, PKCS#11 module files, the DNS\n" +
		"resolver, httpd fragments, trust-store objects and the hostname.\n" +
		"Every step runs even when an earlier one fails; failures are\n" +
		"reported together.",
	RunE: runUninstallTasks,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstallTasks(cmd *cobra.Command, _ []string) error {
	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	if err := tasks.Uninstall(cmd.Context()); err != nil {
		return fmt.Errorf("idmd uninstall: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "platform configuration reverted")
	return nil
}
