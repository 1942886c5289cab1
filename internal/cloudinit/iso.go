package cloudinit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kdomanski/iso9660"
)

// VolumeLabel is the NoCloud datasource label. cloud-init matches it case
// insensitively; ISO9660 volume identifiers are upper case.
const VolumeLabel = "CIDATA"

// Seed holds the three rendered NoCloud documents.
type Seed struct {
	UserData      string
	MetaData      string
	NetworkConfig string
}

// GenerateSeed renders all three documents for cfg.
func GenerateSeed(cfg Config) (Seed, error) {
	userData, err := GenerateUserData(cfg)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to generate user-data: %w", err)
	}
	metaData, err := GenerateMetaData(cfg)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to generate meta-data: %w", err)
	}
	networkConfig, err := GenerateNetworkConfig(cfg)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to generate network-config: %w", err)
	}
	return Seed{UserData: userData, MetaData: metaData, NetworkConfig: networkConfig}, nil
}

// ISO packs the seed into an ISO9660 image labelled VolumeLabel with
// user-data, meta-data and network-config in its root.
func (s Seed) ISO() ([]byte, error) {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		_ = writer.Cleanup()
	}()

	files := []struct {
		name    string
		content string
	}{
		{"user-data", s.UserData},
		{"meta-data", s.MetaData},
		{"network-config", s.NetworkConfig},
	}
	for _, f := range files {
		if err := writer.AddFile(strings.NewReader(f.content), f.name); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, VolumeLabel); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateISO renders cfg and packs it in one step.
func GenerateISO(cfg Config) ([]byte, error) {
	seed, err := GenerateSeed(cfg)
	if err != nil {
		return nil, err
	}
	return seed.ISO()
}
