package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dnsNameservers   []string
	dnsSearchDomains []string
)

var configureDNSCmd = &cobra.Command{
	Use:   "configure-dns",
	Short: "Point the host resolver at the deployment DNS servers",
	Long: "Back up the current resolver configuration, then route DNS through\n" +
		"NetworkManager or systemd-resolved when either is in charge, falling\n" +
		"back to a static resolv.conf otherwise.",
	RunE: runConfigureDNS,
}

var unconfigureDNSCmd = &cobra.Command{
	Use:   "unconfigure-dns",
	Short: "Revert the host resolver to its pre-deployment state",
	RunE:  runUnconfigureDNS,
}

func init() {
	configureDNSCmd.Flags().StringSliceVar(&dnsNameservers, "nameserver", nil, "DNS server address (repeatable)")
	configureDNSCmd.Flags().StringSliceVar(&dnsSearchDomains, "search", nil, "DNS search domain (repeatable)")
	rootCmd.AddCommand(configureDNSCmd)
	rootCmd.AddCommand(unconfigureDNSCmd)
}

func runConfigureDNS(cmd *cobra.Command, _ []string) error {
	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	if err := tasks.ConfigureDNSResolver(cmd.Context(), dnsNameservers, dnsSearchDomains); err != nil {
		return fmt.Errorf("idmd configure-dns: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "DNS resolver configured")
	return nil
}

func runUnconfigureDNS(cmd *cobra.Command, _ []string) error {
	tasks, err := loadTasks()
	if err != nil {
		return err
	}
	if err := tasks.UnconfigureDNSResolver(cmd.Context()); err != nil {
		return fmt.Errorf("idmd unconfigure-dns: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "DNS resolver restored")
	return nil
}
