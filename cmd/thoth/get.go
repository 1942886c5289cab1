package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/output"
	"github.com/jbweber/thoth/internal/remote"
)

var getShowXML bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long: `List all virtual machines on the hypervisor.

Shows ID, name, display name, owner and state. Running VMs also show their
current CPU and memory usage.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			resources, err := client.ListResources(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list VMs: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatResources(resources) })
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <vm-name>",
	Short: "Get details about a VM",
	Long: `Get detailed information about a specific virtual machine.

Output formats:
  -o table  Human-readable summary (default)
  -o yaml   Detail including the live domain XML
  -o json   Detail including the live domain XML`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			detail, err := client.GetResourceDetail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get VM: %w", err)
			}
			if getShowXML {
				fmt.Println(detail.XML)
				return nil
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatDetail(detail) })
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <vm-name>",
	Short: "Show the state of a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			status, err := client.GetResourceStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatStatus(args[0], status) })
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <vm-name>",
	Short: "Show one stats reading for a VM",
	Long: `Show CPU, memory, disk and network statistics for a running VM.

CPU usage is computed between consecutive readings, so the first reading
taken by a fresh libvirt connection reports 0%. Use 'thoth watch' for a
live view.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			stats, err := client.GetResourceStats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatStats(args[0], stats) })
		})
	},
}

var ipCmd = &cobra.Command{
	Use:   "ip <vm-name>",
	Short: "Show the IP addresses of a VM",
	Long: `Show the addresses a VM has been assigned.

DHCP leases are consulted first, then the guest agent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			addr, err := client.GetResourceAddress(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get address: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatAddress(addr) })
		})
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console <vm-name>",
	Short: "Show the VNC console endpoint of a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			ep, err := client.GetConsoleEndpoint(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get console endpoint: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatConsole(ep) })
		})
	},
}

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Show hypervisor host information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			si, ok := client.(remote.SystemInfoer)
			if !ok {
				return fmt.Errorf("backend %q does not report system information", cfg.Backend.Mode)
			}
			info, err := si.SystemInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get system info: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatSystemInfo(info) })
		})
	},
}

func init() {
	getCmd.Flags().BoolVar(&getShowXML, "xml", false, "print only the live domain XML")
}
