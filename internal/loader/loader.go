// Package loader reads and writes VirtualMachine request files.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/remote"
)

// LoadFromFile loads a request file and resolves its passwordFile and
// sshKeyFile references relative to the file's directory.
func LoadFromFile(path string) (*v1alpha1.VirtualMachine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	vm, err := LoadFromYAML(data)
	if err != nil {
		return nil, err
	}

	if err := ResolveCredentials(vm, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return vm, nil
}

// LoadFromYAML parses a request. File references are left unresolved.
func LoadFromYAML(data []byte) (*v1alpha1.VirtualMachine, error) {
	var vm v1alpha1.VirtualMachine
	if err := yaml.Unmarshal(data, &vm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if vm.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if vm.Kind == "" {
		return nil, fmt.Errorf("missing required field: kind")
	}
	if vm.APIVersion != v1alpha1.APIVersion {
		return nil, fmt.Errorf("unsupported apiVersion: %s (expected: %s)", vm.APIVersion, v1alpha1.APIVersion)
	}
	if vm.Kind != v1alpha1.VirtualMachineKind {
		return nil, fmt.Errorf("unsupported kind: %s (expected: %s)", vm.Kind, v1alpha1.VirtualMachineKind)
	}

	vm.Normalize()

	if err := validateSpec(&vm); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &vm, nil
}

// SaveToFile writes a request file. Inline credentials are written as-is,
// so callers writing templates should prefer file references.
func SaveToFile(vm *v1alpha1.VirtualMachine, path string) error {
	v1alpha1.SetDefaultAPIVersion(vm)

	data, err := yaml.Marshal(vm)
	if err != nil {
		return fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// ResolveCredentials reads passwordFile and sshKeyFile into the inline
// fields when those are empty. baseDir anchors relative paths.
func ResolveCredentials(vm *v1alpha1.VirtualMachine, baseDir string) error {
	user := &vm.Spec.User

	if user.Password == "" && user.PasswordFile != "" {
		data, err := readRef(user.PasswordFile, baseDir)
		if err != nil {
			return fmt.Errorf("spec.user.passwordFile: %w", err)
		}
		user.Password = strings.TrimRight(string(data), "\r\n")
	}
	if user.SSHKey == "" && user.SSHKeyFile != "" {
		data, err := readRef(user.SSHKeyFile, baseDir)
		if err != nil {
			return fmt.Errorf("spec.user.sshKeyFile: %w", err)
		}
		user.SSHKey = strings.TrimSpace(string(data))
	}
	return nil
}

func readRef(ref, baseDir string) ([]byte, error) {
	path, err := expandPath(ref, baseDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func expandPath(ref, baseDir string) (string, error) {
	if ref == "~" || strings.HasPrefix(ref, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand %s: %w", ref, err)
		}
		return filepath.Join(home, strings.TrimPrefix(ref, "~")), nil
	}
	if filepath.IsAbs(ref) || baseDir == "" {
		return ref, nil
	}
	return filepath.Join(baseDir, ref), nil
}

// validateSpec checks the file's structure. Field limits and the
// credential rule are enforced by the provisioning request itself.
func validateSpec(vm *v1alpha1.VirtualMachine) error {
	if vm.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	if vm.Spec.Flavor != "" {
		if _, ok := remote.LookupFlavor(vm.Spec.Flavor); !ok {
			return fmt.Errorf("spec.flavor %q is unknown (valid: %s)", vm.Spec.Flavor, strings.Join(remote.FlavorNames(), ", "))
		}
	}
	if vm.Spec.VCPUs < 0 {
		return fmt.Errorf("spec.vcpus must not be negative")
	}
	if vm.Spec.MemoryMB < 0 {
		return fmt.Errorf("spec.memoryMB must not be negative")
	}
	if vm.Spec.DiskGB < 0 {
		return fmt.Errorf("spec.diskGB must not be negative")
	}

	user := vm.Spec.User
	if user.Name == "" {
		return fmt.Errorf("spec.user.name is required")
	}
	if user.Password != "" && user.PasswordFile != "" {
		return fmt.Errorf("spec.user cannot specify both 'password' and 'passwordFile'")
	}
	if user.SSHKey != "" && user.SSHKeyFile != "" {
		return fmt.Errorf("spec.user cannot specify both 'sshKey' and 'sshKeyFile'")
	}

	return nil
}
