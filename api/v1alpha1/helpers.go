package v1alpha1

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jbweber/thoth/internal/remote"
)

const (
	// GroupName is the API group for thoth request files.
	GroupName = "thoth.jbweber.dev"

	// Version is the API version.
	Version = "v1alpha1"

	// VirtualMachineKind is the kind string for VirtualMachine requests.
	VirtualMachineKind = "VirtualMachine"
)

// APIVersion is the full apiVersion value of this package's types.
const APIVersion = GroupName + "/" + Version

// NewVirtualMachine returns a request with TypeMeta and metadata filled in
// and the default flavor and network set.
func NewVirtualMachine(name string) *VirtualMachine {
	return &VirtualMachine{
		TypeMeta: TypeMeta{
			APIVersion: APIVersion,
			Kind:       VirtualMachineKind,
		},
		ObjectMeta: ObjectMeta{
			Name:              name,
			UID:               uuid.New().String(),
			CreationTimestamp: Now(),
		},
		Spec: VirtualMachineSpec{
			Flavor:  remote.DefaultFlavor,
			Network: remote.DefaultNetwork,
		},
	}
}

// FromRequest builds a request file from a ProvisioningRequest, for
// writing templates out of command-line flags.
func FromRequest(req remote.ProvisioningRequest) *VirtualMachine {
	vm := NewVirtualMachine(req.Hostname)
	vm.Spec = VirtualMachineSpec{
		Flavor:   req.Flavor,
		VCPUs:    req.VCPUs,
		MemoryMB: req.MemoryMB,
		DiskGB:   req.DiskGB,
		Image:    req.Image,
		Network:  req.Network,
		User: UserSpec{
			Name:     req.Username,
			Password: req.Password,
			SSHKey:   req.SSHKey,
		},
	}
	return vm
}

// SetDefaultAPIVersion fills apiVersion and kind when they are missing.
func SetDefaultAPIVersion(vm *VirtualMachine) {
	if vm.APIVersion == "" {
		vm.APIVersion = APIVersion
	}
	if vm.Kind == "" {
		vm.Kind = VirtualMachineKind
	}
}

// Normalize sanitizes user input to consistent formats.
func (vm *VirtualMachine) Normalize() {
	vm.Name = strings.ToLower(strings.TrimSpace(vm.Name))
	vm.Spec.Flavor = strings.ToLower(strings.TrimSpace(vm.Spec.Flavor))
	vm.Spec.Image = strings.TrimSuffix(strings.TrimSpace(vm.Spec.Image), ".qcow2")
	vm.Spec.Network = strings.TrimSpace(vm.Spec.Network)
	vm.Spec.User.Name = strings.TrimSpace(vm.Spec.User.Name)
	vm.Spec.User.SSHKey = strings.TrimSpace(vm.Spec.User.SSHKey)
}

// ToRequest converts the file into a ProvisioningRequest. File references
// must already be resolved; see loader.LoadFromFile.
func (vm *VirtualMachine) ToRequest() remote.ProvisioningRequest {
	return remote.ProvisioningRequest{
		Hostname: vm.Name,
		MemoryMB: vm.Spec.MemoryMB,
		VCPUs:    vm.Spec.VCPUs,
		DiskGB:   vm.Spec.DiskGB,
		Image:    vm.Spec.Image,
		Network:  vm.Spec.Network,
		Username: vm.Spec.User.Name,
		Password: vm.Spec.User.Password,
		SSHKey:   vm.Spec.User.SSHKey,
		Flavor:   vm.Spec.Flavor,
	}
}
