package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateAuthCmd = &cobra.Command{
	Use:   "migrate-auth",
	Short: "Migrate from legacy authconfig to the sssd authselect profile",
	Long: "Switch the host to the sssd authselect profile, carrying over the\n" +
		"mkhomedir choice recorded by the legacy authconfig tooling and\n" +
		"clearing the legacy state.",
	RunE: runMigrateAuth,
}

func init() {
	rootCmd.AddCommand(migrateAuthCmd)
}

func runMigrateAuth(cmd *cobra.Command, _ []string) error {
	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	if err := tasks.Auth.MigrateFromAuthconfig(cmd.Context(), tasks.State); err != nil {
		return fmt.Errorf("idmd migrate-auth: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "authentication profile migrated to sssd")
	return nil
}
