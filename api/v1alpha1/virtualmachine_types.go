package v1alpha1

// VirtualMachine is a provisioning request file.
//
//	apiVersion: thoth.jbweber.dev/v1alpha1
//	kind: VirtualMachine
//	metadata:
//	  name: web01
//	spec:
//	  flavor: medium
//	  image: ubuntu-24.04
//	  user:
//	    name: deploy
//	    sshKeyFile: ~/.ssh/id_ed25519.pub
//
// Status is written back by thoth deploy --record.
type VirtualMachine struct {
	TypeMeta `json:",inline" yaml:",inline"`

	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec VirtualMachineSpec `json:"spec" yaml:"spec"`

	// +optional
	Status *VirtualMachineStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// VirtualMachineSpec is the desired VM. Sizing fields left at zero come
// from the flavor.
type VirtualMachineSpec struct {
	// Flavor is small, medium or large. Defaults to medium.
	// +optional
	Flavor string `json:"flavor,omitempty" yaml:"flavor,omitempty"`

	// +optional
	VCPUs int `json:"vcpus,omitempty" yaml:"vcpus,omitempty"`

	// +optional
	MemoryMB int `json:"memoryMB,omitempty" yaml:"memoryMB,omitempty"`

	// +optional
	DiskGB int `json:"diskGB,omitempty" yaml:"diskGB,omitempty"`

	// Image names a base image in the images pool, without the .qcow2
	// suffix. Empty uses the configured default image.
	// +optional
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Network is the libvirt network to attach to. Defaults to "default".
	// +optional
	Network string `json:"network,omitempty" yaml:"network,omitempty"`

	// User is the login account cloud-init creates.
	User UserSpec `json:"user" yaml:"user"`
}

// UserSpec is the guest account. Exactly one credential must resolve:
// password, passwordFile, sshKey or sshKeyFile.
type UserSpec struct {
	Name string `json:"name" yaml:"name"`

	// +optional
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// PasswordFile is read when Password is empty. Relative paths are
	// resolved against the request file's directory.
	// +optional
	PasswordFile string `json:"passwordFile,omitempty" yaml:"passwordFile,omitempty"`

	// +optional
	SSHKey string `json:"sshKey,omitempty" yaml:"sshKey,omitempty"`

	// SSHKeyFile is read when SSHKey is empty. A leading ~ expands to the
	// home directory.
	// +optional
	SSHKeyFile string `json:"sshKeyFile,omitempty" yaml:"sshKeyFile,omitempty"`
}

// VirtualMachineStatus records the outcome of the last deploy.
type VirtualMachineStatus struct {
	// Phase is the last provisioning phase reached.
	Phase string `json:"phase,omitempty" yaml:"phase,omitempty"`

	// Succeeded is false when Phase failed.
	Succeeded bool `json:"succeeded" yaml:"succeeded"`

	// Address is the resolved primary IPv4, empty if none was found.
	// +optional
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// +optional
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// RunID is the orchestrator's run identifier.
	// +optional
	RunID string `json:"runID,omitempty" yaml:"runID,omitempty"`

	// +optional
	CompletedAt Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}
