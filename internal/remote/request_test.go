package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSSHKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIIbJKZscbOLzBsgY5y2QupKW4A2kSDjMBQGPb1dChr+S test@example.com"

func validRequest() ProvisioningRequest {
	return ProvisioningRequest{
		Hostname: "test-vm",
		Username: "alice",
		Password: "correct-horse",
	}.Normalized()
}

func TestProvisioningRequest_Normalized(t *testing.T) {
	t.Run("applies default flavor", func(t *testing.T) {
		r := ProvisioningRequest{Hostname: "  Web-01 "}.Normalized()
		assert.Equal(t, "web-01", r.Hostname)
		assert.Equal(t, "medium", r.Flavor)
		assert.Equal(t, 4096, r.MemoryMB)
		assert.Equal(t, 2, r.VCPUs)
		assert.Equal(t, 20, r.DiskGB)
		assert.Equal(t, DefaultNetwork, r.Network)
	})

	t.Run("explicit sizing wins", func(t *testing.T) {
		r := ProvisioningRequest{Flavor: "LARGE", MemoryMB: 1024}.Normalized()
		assert.Equal(t, "large", r.Flavor)
		assert.Equal(t, 1024, r.MemoryMB)
		assert.Equal(t, 4, r.VCPUs)
		assert.Equal(t, 40, r.DiskGB)
	})

	t.Run("original is untouched", func(t *testing.T) {
		orig := ProvisioningRequest{Hostname: "ABC"}
		_ = orig.Normalized()
		assert.Equal(t, "ABC", orig.Hostname)
	})
}

func TestProvisioningRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *ProvisioningRequest)
		wantErr error
		errMsg  string
	}{
		{name: "valid password request", mutate: func(r *ProvisioningRequest) {}},
		{
			name: "valid key request",
			mutate: func(r *ProvisioningRequest) {
				r.Password = ""
				r.SSHKey = testSSHKey
			},
		},
		{
			name:    "both credentials",
			mutate:  func(r *ProvisioningRequest) { r.SSHKey = testSSHKey },
			wantErr: ErrCredentialConflict,
		},
		{
			name:    "neither credential",
			mutate:  func(r *ProvisioningRequest) { r.Password = "" },
			wantErr: ErrCredentialMissing,
		},
		{
			name:   "hostname too short",
			mutate: func(r *ProvisioningRequest) { r.Hostname = "ab" },
			errMsg: "hostname",
		},
		{
			name:   "hostname starts with dash",
			mutate: func(r *ProvisioningRequest) { r.Hostname = "-web" },
			errMsg: "hostname",
		},
		{
			name:   "hostname starts with dot",
			mutate: func(r *ProvisioningRequest) { r.Hostname = ".web" },
			errMsg: "hostname",
		},
		{
			name:   "hostname ends with dash",
			mutate: func(r *ProvisioningRequest) { r.Hostname = "web-" },
			errMsg: "must not end",
		},
		{
			name:   "reserved hostname",
			mutate: func(r *ProvisioningRequest) { r.Hostname = "localhost" },
			errMsg: "reserved",
		},
		{
			name:   "reserved username",
			mutate: func(r *ProvisioningRequest) { r.Username = "root" },
			errMsg: "reserved",
		},
		{
			name:   "reserved username sys",
			mutate: func(r *ProvisioningRequest) { r.Username = "sys" },
			errMsg: "reserved",
		},
		{name: "nobody is an ordinary username", mutate: func(r *ProvisioningRequest) { r.Username = "nobody" }},
		{
			name:   "uppercase username",
			mutate: func(r *ProvisioningRequest) { r.Username = "Alice" },
			errMsg: "username",
		},
		{
			name:   "short password",
			mutate: func(r *ProvisioningRequest) { r.Password = "short" },
			errMsg: "password",
		},
		{
			name: "garbage ssh key",
			mutate: func(r *ProvisioningRequest) {
				r.Password = ""
				r.SSHKey = "ssh-rsa not-a-key"
			},
			errMsg: "ssh key",
		},
		{
			name:   "unknown flavor",
			mutate: func(r *ProvisioningRequest) { r.Flavor = "huge" },
			errMsg: "unknown flavor",
		},
		{
			name:   "memory out of range",
			mutate: func(r *ProvisioningRequest) { r.MemoryMB = 128 },
			errMsg: "memory",
		},
		{
			name:   "too many vcpus",
			mutate: func(r *ProvisioningRequest) { r.VCPUs = 64 },
			errMsg: "vcpus",
		},
		{
			name:   "disk too small",
			mutate: func(r *ProvisioningRequest) { r.DiskGB = 5 },
			errMsg: "disk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantErr == nil && tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation), "expected validation kind, got %v", KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestProvisioningRequest_AuthMethod(t *testing.T) {
	assert.Equal(t, AuthPassword, ProvisioningRequest{Password: "x"}.AuthMethod())
	assert.Equal(t, AuthSSHKey, ProvisioningRequest{SSHKey: testSSHKey}.AuthMethod())
}
