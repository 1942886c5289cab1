package remote

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// AuthMethod is the credential kind carried by a ProvisioningRequest.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthSSHKey   AuthMethod = "ssh-key"
)

// ProvisioningRequest describes a VM to create. Exactly one of Password and
// SSHKey must be set.
type ProvisioningRequest struct {
	Hostname string `yaml:"hostname" json:"hostname"`
	MemoryMB int    `yaml:"memory_mb,omitempty" json:"memory,omitempty"`
	VCPUs    int    `yaml:"vcpus,omitempty" json:"vcpus,omitempty"`
	DiskGB   int    `yaml:"disk_gb,omitempty" json:"disk,omitempty"`
	Image    string `yaml:"image,omitempty" json:"image,omitempty"`
	Network  string `yaml:"network,omitempty" json:"network,omitempty"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	SSHKey   string `yaml:"ssh_key,omitempty" json:"sshKey,omitempty"`
	Flavor   string `yaml:"flavor,omitempty" json:"flavor,omitempty"`
}

// Flavor is a sizing preset.
type Flavor struct {
	Name     string
	MemoryMB int
	VCPUs    int
	DiskGB   int
}

const DefaultFlavor = "medium"

// DefaultNetwork is the libvirt network used when a request names none.
const DefaultNetwork = "default"

var flavors = map[string]Flavor{
	"small":  {Name: "small", MemoryMB: 2048, VCPUs: 1, DiskGB: 15},
	"medium": {Name: "medium", MemoryMB: 4096, VCPUs: 2, DiskGB: 20},
	"large":  {Name: "large", MemoryMB: 8192, VCPUs: 4, DiskGB: 40},
}

// LookupFlavor returns the preset with the given name.
func LookupFlavor(name string) (Flavor, bool) {
	f, ok := flavors[strings.ToLower(name)]
	return f, ok
}

// FlavorNames returns the known flavor names, smallest first.
func FlavorNames() []string {
	return []string{"small", "medium", "large"}
}

// Limits enforced by Validate.
const (
	MinHostnameLen = 3
	MaxHostnameLen = 63
	MaxUsernameLen = 32
	MinPasswordLen = 8
	MaxPasswordLen = 128
	MinMemoryMB    = 512
	MaxMemoryMB    = 65536
	MinVCPUs       = 1
	MaxVCPUs       = 32
	MinDiskGB      = 10
	MaxDiskGB      = 1000
)

var (
	hostnamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

	reservedHostnames = map[string]bool{
		"localhost": true, "default": true, "template": true, "test": true, "example": true,
	}
	reservedUsernames = map[string]bool{
		"root": true, "admin": true, "administrator": true, "daemon": true,
		"bin": true, "sys": true,
	}
	allowedKeyTypes = []string{"ssh-rsa", "ssh-dss", "ssh-ed25519", "ecdsa-sha2-"}
)

var (
	ErrCredentialConflict = errors.New("exactly one of password or ssh key must be set, not both")
	ErrCredentialMissing  = errors.New("exactly one of password or ssh key must be set")
)

// AuthMethod reports which credential the request carries. It is only
// meaningful after Validate succeeds.
func (r ProvisioningRequest) AuthMethod() AuthMethod {
	if r.SSHKey != "" {
		return AuthSSHKey
	}
	return AuthPassword
}

// Normalized returns a copy with input sanitized and flavor defaults applied.
// Explicit sizing fields win over the flavor preset.
func (r ProvisioningRequest) Normalized() ProvisioningRequest {
	r.Hostname = strings.ToLower(strings.TrimSpace(r.Hostname))
	r.Username = strings.TrimSpace(r.Username)
	r.SSHKey = strings.TrimSpace(r.SSHKey)
	r.Image = strings.TrimSpace(r.Image)
	r.Network = strings.TrimSpace(r.Network)
	r.Flavor = strings.ToLower(strings.TrimSpace(r.Flavor))

	if r.Flavor == "" {
		r.Flavor = DefaultFlavor
	}
	if f, ok := flavors[r.Flavor]; ok {
		if r.MemoryMB == 0 {
			r.MemoryMB = f.MemoryMB
		}
		if r.VCPUs == 0 {
			r.VCPUs = f.VCPUs
		}
		if r.DiskGB == 0 {
			r.DiskGB = f.DiskGB
		}
	}
	if r.Network == "" {
		r.Network = DefaultNetwork
	}
	return r
}

// Validate checks the request. The credential rule is checked first. All
// failures are KindValidation errors.
func (r ProvisioningRequest) Validate() error {
	if err := r.validate(); err != nil {
		return Validation("validate request", err)
	}
	return nil
}

func (r ProvisioningRequest) validate() error {
	switch {
	case r.Password != "" && r.SSHKey != "":
		return ErrCredentialConflict
	case r.Password == "" && r.SSHKey == "":
		return ErrCredentialMissing
	}

	if err := validateHostname(r.Hostname); err != nil {
		return fmt.Errorf("hostname: %w", err)
	}
	if err := validateUsername(r.Username); err != nil {
		return fmt.Errorf("username: %w", err)
	}

	if r.Password != "" {
		if n := len(r.Password); n < MinPasswordLen || n > MaxPasswordLen {
			return fmt.Errorf("password must be %d-%d characters, got %d", MinPasswordLen, MaxPasswordLen, n)
		}
	} else if err := validateSSHKey(r.SSHKey); err != nil {
		return fmt.Errorf("ssh key: %w", err)
	}

	if r.Flavor != "" {
		if _, ok := LookupFlavor(r.Flavor); !ok {
			return fmt.Errorf("unknown flavor %q (want one of %s)", r.Flavor, strings.Join(FlavorNames(), ", "))
		}
	}
	if r.MemoryMB < MinMemoryMB || r.MemoryMB > MaxMemoryMB {
		return fmt.Errorf("memory must be %d-%d MB, got %d", MinMemoryMB, MaxMemoryMB, r.MemoryMB)
	}
	if r.VCPUs < MinVCPUs || r.VCPUs > MaxVCPUs {
		return fmt.Errorf("vcpus must be %d-%d, got %d", MinVCPUs, MaxVCPUs, r.VCPUs)
	}
	if r.DiskGB < MinDiskGB || r.DiskGB > MaxDiskGB {
		return fmt.Errorf("disk must be %d-%d GB, got %d", MinDiskGB, MaxDiskGB, r.DiskGB)
	}
	return nil
}

func validateHostname(h string) error {
	if n := len(h); n < MinHostnameLen || n > MaxHostnameLen {
		return fmt.Errorf("must be %d-%d characters, got %d", MinHostnameLen, MaxHostnameLen, n)
	}
	if !hostnamePattern.MatchString(h) {
		return fmt.Errorf("must start with a letter or digit and contain only letters, digits, '-' or '.', got %q", h)
	}
	if strings.HasSuffix(h, "-") {
		return fmt.Errorf("must not end with '-', got %q", h)
	}
	if reservedHostnames[h] {
		return fmt.Errorf("%q is reserved", h)
	}
	return nil
}

func validateUsername(u string) error {
	if u == "" {
		return errors.New("is required")
	}
	if len(u) > MaxUsernameLen {
		return fmt.Errorf("must be at most %d characters, got %d", MaxUsernameLen, len(u))
	}
	if !usernamePattern.MatchString(u) {
		return fmt.Errorf("must be lowercase, start with a letter and contain only letters, digits, '_' or '-', got %q", u)
	}
	if reservedUsernames[u] {
		return fmt.Errorf("%q is reserved", u)
	}
	return nil
}

func validateSSHKey(key string) error {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key))
	if err != nil {
		return fmt.Errorf("not a valid SSH public key: %w", err)
	}
	keyType := pub.Type()
	for _, prefix := range allowedKeyTypes {
		if strings.HasPrefix(keyType, prefix) {
			return nil
		}
	}
	return fmt.Errorf("unsupported key type %q", keyType)
}
