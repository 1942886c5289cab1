package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/loader"
	"github.com/jbweber/thoth/internal/output"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
)

var (
	deployFile          string
	deployName          string
	deployFlavor        string
	deployVCPUs         int
	deployMemoryMB      int
	deployDiskGB        int
	deployImage         string
	deployNetwork       string
	deployUser          string
	deployPassword      string
	deploySSHKey        string
	deploySSHKeyFile    string
	deployWriteTemplate string
	deployDryRun        bool
	deployRecord        bool
	deployDetach        bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Provision a new VM",
	Long: `Provision a new VM from a cloud image and wait until it has an address.

The request comes from a YAML file (-f) or from flags. Flavors set the
default sizes; explicit --vcpus, --memory and --disk values override them.
One of --password or --ssh-key/--ssh-key-file is required.

Progress is reported on stderr as each phase begins. A run that fails after
the VM was defined reports what it left behind.

Examples:
  # Deploy from a file and record the outcome back into it
  thoth deploy -f web01.yaml --record

  # Deploy from flags
  thoth deploy --name web01 --flavor large --user admin --ssh-key-file ~/.ssh/id_ed25519.pub

  # Submit to a thoth server and return at once; follow up with 'thoth run get'
  thoth deploy -f web01.yaml --detach

  # Write the flags out as a request file without deploying
  thoth deploy --name web01 --user admin --password secret --write-template web01.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := deployRequestFile(cmd)
		if err != nil {
			return err
		}

		if deployWriteTemplate != "" {
			if err := loader.SaveToFile(vm, deployWriteTemplate); err != nil {
				return err
			}
			fmt.Printf("✓ Request written to %s\n", deployWriteTemplate)
			return nil
		}

		req := vm.ToRequest()
		if req.Image == "" {
			req.Image = cfg.Provisioning.Image
		}
		if err := req.Normalized().Validate(); err != nil {
			return err
		}

		if deployDryRun {
			return render(func(f output.Formatter) (string, error) { return f.FormatVM(vm) })
		}

		if deployDetach {
			client, err := apiClient()
			if err != nil {
				return err
			}
			st, err := client.SubmitRun(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to submit run: %w", err)
			}
			fmt.Printf("✓ Run %s submitted for %s\n", st.ID, st.Hostname)
			return nil
		}

		return withBackend(cmd.Context(), func(client remote.Client) error {
			out, runID, err := runDeploy(cmd, client, req)
			if err != nil {
				return err
			}
			if deployRecord && deployFile != "" {
				vm.Status = statusFromOutcome(out, runID)
				if err := loader.SaveToFile(vm, deployFile); err != nil {
					return fmt.Errorf("failed to record outcome: %w", err)
				}
			}
			if rerr := render(func(f output.Formatter) (string, error) { return f.FormatOutcome(out) }); rerr != nil {
				return rerr
			}
			return out.Err()
		})
	},
}

func init() {
	f := deployCmd.Flags()
	f.StringVarP(&deployFile, "file", "f", "", "path to a VirtualMachine YAML file")
	f.StringVar(&deployName, "name", "", "VM hostname")
	f.StringVar(&deployFlavor, "flavor", "", "size preset: "+strings.Join(remote.FlavorNames(), ", "))
	f.IntVar(&deployVCPUs, "vcpus", 0, "vCPU count, overriding the flavor")
	f.IntVar(&deployMemoryMB, "memory", 0, "memory in MiB, overriding the flavor")
	f.IntVar(&deployDiskGB, "disk", 0, "root disk in GiB, overriding the flavor")
	f.StringVar(&deployImage, "image", "", "base image in the images pool")
	f.StringVar(&deployNetwork, "network", "", "libvirt network to attach")
	f.StringVar(&deployUser, "user", "", "login user created by cloud-init")
	f.StringVar(&deployPassword, "password", "", "password for the login user")
	f.StringVar(&deploySSHKey, "ssh-key", "", "SSH public key for the login user")
	f.StringVar(&deploySSHKeyFile, "ssh-key-file", "", "file holding the SSH public key")
	f.StringVar(&deployWriteTemplate, "write-template", "", "write the request to this file instead of deploying")
	f.BoolVar(&deployDryRun, "dry-run", false, "validate and print the request without deploying")
	f.BoolVar(&deployRecord, "record", false, "write the outcome into the status of the -f file")
	f.BoolVar(&deployDetach, "detach", false, "submit to the thoth server and return without waiting (http backend only)")

	deployCmd.MarkFlagsMutuallyExclusive("file", "name")
	deployCmd.MarkFlagsMutuallyExclusive("ssh-key", "ssh-key-file")
	deployCmd.MarkFlagsMutuallyExclusive("write-template", "dry-run")
	deployCmd.MarkFlagsMutuallyExclusive("write-template", "record")
	deployCmd.MarkFlagsMutuallyExclusive("detach", "record")
	deployCmd.MarkFlagsMutuallyExclusive("detach", "dry-run")
}

// deployRequestFile builds the request from -f, or from flags when no file
// is given. Flags set explicitly on the command line override the file.
func deployRequestFile(cmd *cobra.Command) (*v1alpha1.VirtualMachine, error) {
	var vm *v1alpha1.VirtualMachine
	if deployFile != "" {
		loaded, err := loader.LoadFromFile(deployFile)
		if err != nil {
			return nil, err
		}
		vm = loaded
	} else {
		if deployName == "" {
			return nil, fmt.Errorf("either --file or --name is required")
		}
		vm = v1alpha1.NewVirtualMachine(deployName)
	}

	flags := cmd.Flags()
	spec := &vm.Spec
	if flags.Changed("flavor") {
		spec.Flavor = deployFlavor
	}
	if flags.Changed("vcpus") {
		spec.VCPUs = deployVCPUs
	}
	if flags.Changed("memory") {
		spec.MemoryMB = deployMemoryMB
	}
	if flags.Changed("disk") {
		spec.DiskGB = deployDiskGB
	}
	if flags.Changed("image") {
		spec.Image = deployImage
	}
	if flags.Changed("network") {
		spec.Network = deployNetwork
	}
	if flags.Changed("user") {
		spec.User.Name = deployUser
	}
	if flags.Changed("password") {
		spec.User.Password = deployPassword
	}
	if flags.Changed("ssh-key") {
		spec.User.SSHKey = deploySSHKey
	}
	if flags.Changed("ssh-key-file") {
		key, err := os.ReadFile(deploySSHKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
		spec.User.SSHKey = strings.TrimSpace(string(key))
	}

	vm.Normalize()
	return vm, nil
}

// runDeploy submits req and reports each phase on stderr until the run is
// terminal.
func runDeploy(cmd *cobra.Command, client remote.Client, req remote.ProvisioningRequest) (provision.Outcome, string, error) {
	provCfg := cfg.ProvisionConfig()
	provCfg.Logger = log.Sugar().Named("provision")
	orch := provision.New(client, provCfg)

	ctx := cmd.Context()
	run, err := orch.Submit(ctx, req)
	if err != nil {
		return provision.Outcome{}, "", err
	}

	stderr := cmd.ErrOrStderr()
	for tr := range run.Transitions() {
		if tr.Outcome != nil {
			break
		}
		fmt.Fprintf(stderr, "[%s] %s %s\n", tr.At.Format("15:04:05"), req.Hostname, tr.Phase)
	}

	// The transition stream closes once the run is terminal.
	out, ok := run.Outcome()
	if !ok {
		return provision.Outcome{}, run.ID, fmt.Errorf("run %s ended without an outcome", run.ID)
	}
	return out, run.ID, nil
}

func statusFromOutcome(out provision.Outcome, runID string) *v1alpha1.VirtualMachineStatus {
	st := &v1alpha1.VirtualMachineStatus{
		Succeeded:   out.Succeeded,
		Address:     out.Address,
		RunID:       runID,
		CompletedAt: v1alpha1.Now(),
	}
	switch {
	case out.Succeeded:
		st.Phase = string(provision.PhaseSucceeded)
		if out.AddressErr != nil {
			st.Message = out.AddressErr.Error()
		}
	default:
		st.Phase = string(out.FailedPhase)
		if out.Reason != nil {
			st.Message = out.Reason.Error()
		}
	}
	return st
}
