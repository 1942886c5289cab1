package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/naming"
	"github.com/jbweber/thoth/internal/storage"
)

var imageDeleteConfirm bool

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage base images",
	Long: `Manage base OS images in the images storage pool.

Base images are the backing files of VM boot disks. 'thoth deploy --image'
selects one by name; a name without an extension refers to <name>.qcow2.

These commands talk to the local libvirt daemon directly.`,
}

func init() {
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageDeleteCmd)
	imageCmd.AddCommand(imagePoolsCmd)

	imageDeleteCmd.Flags().BoolVarP(&imageDeleteConfirm, "yes", "y", false, "confirm the deletion")
}

// withStorage opens a libvirt connection and ensures the thoth pools exist.
func withStorage(ctx context.Context, fn func(mgr *storage.Manager) error) error {
	b, mgr, err := openLibvirt(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	if err := mgr.EnsureDefaultPools(ctx); err != nil {
		return fmt.Errorf("failed to ensure default pools: %w", err)
	}
	return fn(mgr)
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List base images",
	Long: `List all base OS images in the images pool.

Shows image name, virtual size, allocation and path for each image.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(mgr *storage.Manager) error {
			images, err := mgr.ListVolumes(cmd.Context(), mgr.ImagesPool())
			if err != nil {
				return fmt.Errorf("failed to list images: %w", err)
			}
			if len(images) == 0 {
				fmt.Printf("No images found in %s pool\n", mgr.ImagesPool())
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if !noHeaders {
				fmt.Fprintln(w, "NAME\tSIZE\tALLOCATED\tPATH")
			}
			for _, img := range images {
				fmt.Fprintf(w, "%s\t%.1fGB\t%.1fGB\t%s\n",
					img.Name,
					img.CapacityGB(),
					float64(img.Allocation)/(1<<30),
					img.Path,
				)
			}
			return w.Flush()
		})
	},
}

var imageDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a base image",
	Long: `Delete a base OS image from the images pool.

VMs whose boot disks use this image as a backing file become unbootable.
Requires --yes.

Example:
  thoth image delete fedora-43 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !imageDeleteConfirm {
			return fmt.Errorf("refusing to delete image %s without --yes", args[0])
		}
		volume := naming.ImageVolumeName(strings.TrimSpace(args[0]))

		return withStorage(cmd.Context(), func(mgr *storage.Manager) error {
			exists, err := mgr.ImageExists(cmd.Context(), volume)
			if err != nil {
				return fmt.Errorf("failed to check if image exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("image %s not found in %s pool", volume, mgr.ImagesPool())
			}
			if err := mgr.DeleteVolume(cmd.Context(), mgr.ImagesPool(), volume); err != nil {
				return fmt.Errorf("failed to delete image: %w", err)
			}
			fmt.Printf("✓ Image %s deleted\n", volume)
			return nil
		})
	},
}

var imagePoolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Create the images and VMs pools if they are missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(mgr *storage.Manager) error {
			fmt.Printf("✓ Pools %s and %s are ready\n", mgr.ImagesPool(), mgr.VMsPool())
			return nil
		})
	},
}
