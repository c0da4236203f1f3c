package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var setBooleansCmd = &cobra.Command{
	Use:   "set-booleans name=value ...",
	Short: "Apply SELinux boolean settings persistently",
	Long: "Query each boolean, record its pre-change value for uninstall, and\n" +
		"apply all differing settings in one batch. Partial failures are\n" +
		"reported together after the batch completes.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSetBooleans,
}

func init() {
	rootCmd.AddCommand(setBooleansCmd)
}

func runSetBooleans(cmd *cobra.Command, args []string) error {
	required := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("idmd set-booleans: malformed setting %q, want name=value", arg)
		}
		required[name] = value
	}

	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	changed, err := tasks.SetSELinuxBooleans(cmd.Context(), required)
	if err != nil {
		return fmt.Errorf("idmd set-booleans: %w", err)
	}
	if changed {
		fmt.Fprintln(cmd.OutOrStdout(), "SELinux booleans updated")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "SELinux booleans already in the requested state")
	}
	return nil
}
