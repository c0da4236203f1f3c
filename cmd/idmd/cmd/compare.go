package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idmforge/idmd/internal/rpmver"
)

var compareVersionCmd = &cobra.Command{
	Use:   "compare-version A B",
	Short: "Compare two package versions with RPM ordering rules",
	Long: "Print whether version A sorts older than, equal to or newer than\n" +
		"version B under the RPM comparison algorithm (tilde pre-releases,\n" +
		"caret post-releases, numeric-beats-alphabetic).",
	Args: cobra.ExactArgs(2),
	RunE: runCompareVersion,
}

func init() {
	rootCmd.AddCommand(compareVersionCmd)
}

func runCompareVersion(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	switch rpmver.Compare(args[0], args[1]) {
	case -1:
		fmt.Fprintf(w, "%s < %s\n", args[0], args[1])
	case 0:
		fmt.Fprintf(w, "%s == %s\n", args[0], args[1])
	case 1:
		fmt.Fprintf(w, "%s > %s\n", args[0], args[1])
	}
	return nil
}
