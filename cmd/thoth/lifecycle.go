package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/focus"
	"github.com/jbweber/thoth/internal/remote"
)

var lifecycleHelp = map[remote.Action]struct{ short, long string }{
	remote.ActionStart:    {"Start a VM", "Boot a defined VM."},
	remote.ActionShutdown: {"Gracefully shut down a VM", "Ask the guest OS to power off. Requires --yes."},
	remote.ActionReboot:   {"Reboot a VM", "Ask the guest OS to reboot."},
	remote.ActionPause:    {"Pause a VM", "Suspend the VM's vCPUs. Memory stays allocated."},
	remote.ActionResume:   {"Resume a paused VM", "Resume a VM suspended with 'thoth pause'."},
	remote.ActionDestroy:  {"Force off a VM", "Immediately power off the VM, like pulling the plug. Requires --yes."},
}

// lifecycleCmds builds one command per lifecycle action. Shutdown and
// destroy take --yes.
func lifecycleCmds() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(remote.Actions))
	for _, action := range remote.Actions {
		help := lifecycleHelp[action]
		var confirm bool

		cmd := &cobra.Command{
			Use:   string(action) + " <vm-name>",
			Short: help.short,
			Long:  help.long,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := args[0]
				return withFocus(cmd.Context(), name, func(c *focus.Controller) error {
					if err := c.Apply(cmd.Context(), action, confirm); err != nil {
						return fmt.Errorf("%s %s: %w", action, name, err)
					}
					fmt.Printf("✓ %s: %s\n", name, action)
					return nil
				})
			},
		}
		if action == remote.ActionShutdown || action == remote.ActionDestroy {
			cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "confirm the operation")
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

var (
	deleteConfirm     bool
	deleteConfirmName string
	deleteRemoveDisks bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <vm-name>",
	Short: "Delete a VM",
	Long: `Delete a virtual machine.

This will:
- Shut the VM down, forcing it off if it does not stop in time
- Delete its snapshot metadata
- Undefine the domain
- With --remove-disks, delete the disk volumes it owns

Both --yes and --confirm-name <vm-name> are required.

Example:
  thoth delete web01 --yes --confirm-name web01 --remove-disks`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return withFocus(cmd.Context(), name, func(c *focus.Controller) error {
			if err := c.Delete(cmd.Context(), deleteConfirm, deleteConfirmName, deleteRemoveDisks); err != nil {
				return fmt.Errorf("failed to delete VM: %w", err)
			}
			if deleteRemoveDisks {
				fmt.Printf("✓ VM %s deleted with its disks\n", name)
			} else {
				fmt.Printf("✓ VM %s deleted (disks kept)\n", name)
			}
			return nil
		})
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteConfirm, "yes", "y", false, "confirm the deletion")
	deleteCmd.Flags().StringVar(&deleteConfirmName, "confirm-name", "", "the VM name, typed again")
	deleteCmd.Flags().BoolVar(&deleteRemoveDisks, "remove-disks", false, "also delete the VM's disk volumes")
}
