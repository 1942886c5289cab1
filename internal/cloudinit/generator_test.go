package cloudinit

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const testSSHKeyEd25519 = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIIbJKZscbOLzBsgY5y2QupKW4A2kSDjMBQGPb1dChr+S test@example.com"

func parseUserData(t *testing.T, content string) UserData {
	t.Helper()
	if !strings.HasPrefix(content, "#cloud-config\n") {
		t.Fatalf("user-data must start with '#cloud-config', got:\n%s", content)
	}
	var userData UserData
	if err := yaml.Unmarshal([]byte(strings.TrimPrefix(content, "#cloud-config\n")), &userData); err != nil {
		t.Fatalf("Failed to parse user-data YAML: %v", err)
	}
	return userData
}

func TestGenerateUserData_Password(t *testing.T) {
	content, err := GenerateUserData(Config{
		Hostname: "test-vm",
		Username: "ubuntu",
		Password: "s3cretpassword",
	})
	if err != nil {
		t.Fatalf("GenerateUserData failed: %v", err)
	}
	if strings.Contains(content, "s3cretpassword") {
		t.Fatal("user-data must not contain the plaintext password")
	}

	userData := parseUserData(t, content)
	if !userData.SSHPasswordAuth {
		t.Error("expected ssh_pwauth true for password auth")
	}
	if len(userData.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(userData.Users))
	}
	u := userData.Users[0]
	if u.Name != "ubuntu" || u.LockPasswd {
		t.Errorf("unexpected user %+v", u)
	}
	if len(u.SSHAuthorizedKeys) != 0 {
		t.Errorf("expected no ssh keys, got %v", u.SSHAuthorizedKeys)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Passwd), []byte("s3cretpassword")); err != nil {
		t.Errorf("passwd is not a bcrypt hash of the password: %v", err)
	}
}

func TestGenerateUserData_SSHKey(t *testing.T) {
	content, err := GenerateUserData(Config{
		Hostname: "web01.prod.example.com",
		Username: "deploy",
		SSHKey:   testSSHKeyEd25519 + "\n",
		Packages: []string{"htop", GuestAgentPackage},
	})
	if err != nil {
		t.Fatalf("GenerateUserData failed: %v", err)
	}

	userData := parseUserData(t, content)
	if userData.SSHPasswordAuth {
		t.Error("expected ssh_pwauth false for key auth")
	}
	if userData.Hostname != "web01" || userData.FQDN != "web01.prod.example.com" {
		t.Errorf("unexpected hostname/fqdn %q/%q", userData.Hostname, userData.FQDN)
	}
	u := userData.Users[0]
	if !u.LockPasswd || u.Passwd != "" {
		t.Errorf("expected locked password for key auth, got %+v", u)
	}
	if len(u.SSHAuthorizedKeys) != 1 || u.SSHAuthorizedKeys[0] != testSSHKeyEd25519 {
		t.Errorf("unexpected ssh keys %v", u.SSHAuthorizedKeys)
	}
	if len(userData.Packages) != 2 || userData.Packages[0] != GuestAgentPackage || userData.Packages[1] != "htop" {
		t.Errorf("expected guest agent first and no duplicates, got %v", userData.Packages)
	}
	if len(userData.RunCmd) != 1 || userData.RunCmd[0][3] != GuestAgentPackage {
		t.Errorf("expected guest agent to be enabled, got %v", userData.RunCmd)
	}
}

func TestGenerateUserData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"both credentials", Config{Hostname: "a", Username: "u", Password: "p", SSHKey: "k"}},
		{"no credentials", Config{Hostname: "a", Username: "u"}},
		{"no hostname", Config{Username: "u", Password: "p"}},
		{"no username", Config{Hostname: "a", Password: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateUserData(tt.cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestGenerateMetaData(t *testing.T) {
	content, err := GenerateMetaData(Config{Hostname: "test-vm"})
	if err != nil {
		t.Fatalf("GenerateMetaData failed: %v", err)
	}
	var md MetaData
	if err := yaml.Unmarshal([]byte(content), &md); err != nil {
		t.Fatalf("Failed to parse meta-data: %v", err)
	}
	if md.InstanceID != "test-vm" || md.LocalHostname != "test-vm" {
		t.Errorf("unexpected meta-data %+v", md)
	}

	content, err = GenerateMetaData(Config{Hostname: "test-vm", InstanceID: "iid-42"})
	if err != nil {
		t.Fatalf("GenerateMetaData failed: %v", err)
	}
	if !strings.Contains(content, "instance-id: iid-42") {
		t.Errorf("expected explicit instance-id, got:\n%s", content)
	}

	if _, err := GenerateMetaData(Config{}); err == nil {
		t.Error("expected error without hostname")
	}
}

func TestGenerateNetworkConfig(t *testing.T) {
	content, err := GenerateNetworkConfig(Config{Hostname: "test-vm"})
	if err != nil {
		t.Fatalf("GenerateNetworkConfig failed: %v", err)
	}
	var nc NetworkConfig
	if err := yaml.Unmarshal([]byte(content), &nc); err != nil {
		t.Fatalf("Failed to parse network-config: %v", err)
	}
	if nc.Version != 2 {
		t.Errorf("expected netplan version 2, got %d", nc.Version)
	}
	eth, ok := nc.Ethernets["primary"]
	if !ok || !eth.DHCP4 || eth.Match.Name != "e*" {
		t.Errorf("unexpected ethernets %+v", nc.Ethernets)
	}
}
