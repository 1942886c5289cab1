// Package cloudinit generates the NoCloud seed for a provisioned VM: the
// user-data, meta-data and network-config documents and the ISO that
// carries them.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// GuestAgentPackage is installed on every VM so the host can read guest
// addresses through the agent.
const GuestAgentPackage = "qemu-guest-agent"

// Config is the guest-side identity of one VM.
type Config struct {
	Hostname string
	// InstanceID defaults to Hostname.
	InstanceID string
	Username   string
	// Password is plaintext; only its bcrypt hash is written.
	Password string
	SSHKey   string
	Packages []string
}

// Validate enforces that the VM gets exactly one way in.
func (c Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if (c.Password == "") == (c.SSHKey == "") {
		return fmt.Errorf("exactly one of password or ssh key is required")
	}
	return nil
}

// UserData is the #cloud-config document.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname        string     `yaml:"hostname"`
	FQDN            string     `yaml:"fqdn"`
	ManageEtcHosts  bool       `yaml:"manage_etc_hosts"`
	Users           []User     `yaml:"users"`
	SSHPasswordAuth bool       `yaml:"ssh_pwauth"`
	PackageUpdate   bool       `yaml:"package_update"`
	Packages        []string   `yaml:"packages,omitempty"`
	RunCmd          [][]string `yaml:"runcmd,omitempty"`
	Output          *Output    `yaml:"output,omitempty"`
}

// User is one entry of the users list.
type User struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo"`
	Shell             string   `yaml:"shell"`
	Groups            string   `yaml:"groups,omitempty"`
	LockPasswd        bool     `yaml:"lock_passwd"`
	Passwd            string   `yaml:"passwd,omitempty"` // crypt(3) hash
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig is a netplan v2 document.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig selects interfaces by name glob and configures DHCP.
type EthernetConfig struct {
	Match MatchConfig `yaml:"match"`
	DHCP4 bool        `yaml:"dhcp4"`
}

type MatchConfig struct {
	Name string `yaml:"name"`
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateUserData renders user-data with the "#cloud-config" header. The
// user gets passwordless sudo. Password auth enables ssh_pwauth; key auth
// disables it and locks the password.
func GenerateUserData(cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid cloud-init config: %w", err)
	}

	hostname := strings.SplitN(cfg.Hostname, ".", 2)[0]
	user := User{
		Name:   cfg.Username,
		Sudo:   "ALL=(ALL) NOPASSWD:ALL",
		Shell:  "/bin/bash",
		Groups: "sudo",
	}

	userData := UserData{
		Hostname:       hostname,
		FQDN:           cfg.Hostname,
		ManageEtcHosts: true,
		PackageUpdate:  true,
		Packages:       packages(cfg.Packages),
		RunCmd: [][]string{
			{"systemctl", "enable", "--now", GuestAgentPackage},
		},
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	if cfg.Password != "" {
		hash, err := hashPassword(cfg.Password)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		user.Passwd = hash
		user.LockPasswd = false
		userData.SSHPasswordAuth = true
	} else {
		user.LockPasswd = true
		user.SSHAuthorizedKeys = []string{strings.TrimSpace(cfg.SSHKey)}
	}
	userData.Users = []User{user}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}
	return "#cloud-config\n" + string(yamlBytes), nil
}

func packages(extra []string) []string {
	out := []string{GuestAgentPackage}
	for _, p := range extra {
		if p != "" && p != GuestAgentPackage {
			out = append(out, p)
		}
	}
	return out
}

// GenerateMetaData renders meta-data. cloud-init treats a changed
// instance-id as a first boot.
func GenerateMetaData(cfg Config) (string, error) {
	if cfg.Hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}
	id := cfg.InstanceID
	if id == "" {
		id = cfg.Hostname
	}

	yamlBytes, err := yaml.Marshal(&MetaData{InstanceID: id, LocalHostname: cfg.Hostname})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}
	return string(yamlBytes), nil
}

// GenerateNetworkConfig renders a netplan config that runs DHCP on the
// first ethernet interface, whatever the guest names it.
func GenerateNetworkConfig(_ Config) (string, error) {
	networkConfig := NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"primary": {
				Match: MatchConfig{Name: "e*"},
				DHCP4: true,
			},
		},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}
	return string(yamlBytes), nil
}
