package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/focus"
	"github.com/jbweber/thoth/internal/output"
	"github.com/jbweber/thoth/internal/remote"
)

var snapshotDescription string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage VM snapshots",
	Long: `List, create, revert and delete libvirt snapshots of a VM.

Snapshots are listed oldest first.`,
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRevertCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotCreateCmd.Flags().StringVarP(&snapshotDescription, "description", "d", "", "snapshot description")
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <vm-name>",
	Short: "List the snapshots of a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(client remote.Client) error {
			snaps, err := client.ListSnapshots(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			return render(func(f output.Formatter) (string, error) { return f.FormatSnapshots(snaps) })
		})
	},
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <vm-name> <snapshot-name>",
	Short: "Snapshot a VM",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocus(cmd.Context(), args[0], func(c *focus.Controller) error {
			if err := c.CreateSnapshot(cmd.Context(), args[1], snapshotDescription); err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}
			fmt.Printf("✓ Snapshot %s of %s created\n", args[1], args[0])
			return nil
		})
	},
}

var snapshotRevertCmd = &cobra.Command{
	Use:   "revert <vm-name> <snapshot-name>",
	Short: "Revert a VM to a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocus(cmd.Context(), args[0], func(c *focus.Controller) error {
			if err := c.RevertSnapshot(cmd.Context(), args[1]); err != nil {
				return fmt.Errorf("failed to revert snapshot: %w", err)
			}
			fmt.Printf("✓ %s reverted to %s\n", args[0], args[1])
			return nil
		})
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <vm-name> <snapshot-name>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocus(cmd.Context(), args[0], func(c *focus.Controller) error {
			if err := c.DeleteSnapshot(cmd.Context(), args[1]); err != nil {
				return fmt.Errorf("failed to delete snapshot: %w", err)
			}
			fmt.Printf("✓ Snapshot %s of %s deleted\n", args[1], args[0])
			return nil
		})
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone <vm-name> <clone-name>",
	Short: "Clone a VM",
	Long: `Copy a VM's disks and define a new VM from its configuration.

The clone gets a new UUID and MAC addresses and is left shut off. Seed
ISOs and other CD-ROMs are not carried over.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocus(cmd.Context(), args[0], func(c *focus.Controller) error {
			if err := c.Clone(cmd.Context(), args[1]); err != nil {
				return fmt.Errorf("failed to clone VM: %w", err)
			}
			fmt.Printf("✓ %s cloned to %s\n", args[0], args[1])
			return nil
		})
	},
}
