package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report host properties relevant to deployment",
	Long: "Probe the host for containerization, FIPS mode, SELinux enablement\n" +
		"and a usable IPv6 stack, and print one line per probe.",
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	runtime, err := tasks.Host.DetectContainer(ctx)
	if err != nil {
		return fmt.Errorf("idmd detect: %w", err)
	}
	if runtime == "" {
		fmt.Fprintln(w, "container:  no")
	} else {
		fmt.Fprintf(w, "container:  %s\n", runtime)
	}

	fmt.Fprintf(w, "fips:       %v\n", tasks.Host.FIPSEnabled())
	fmt.Fprintf(w, "selinux:    %v\n", tasks.SELinux.Enabled(ctx))

	if err := tasks.Host.CheckIPv6Stack(); err != nil {
		fmt.Fprintf(w, "ipv6:       unusable (%v)\n", err)
	} else {
		fmt.Fprintln(w, "ipv6:       ok")
	}
	return nil
}
