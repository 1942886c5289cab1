package storage

import "fmt"

// VolumeFormat is the on-disk format of a volume.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

const gib = 1024 * 1024 * 1024

// VolumeSpec describes a volume to create.
type VolumeSpec struct {
	Name          string
	Format        VolumeFormat
	CapacityBytes uint64
	// BackingPath makes the volume a qcow2 overlay of another volume.
	BackingPath   string
	BackingFormat VolumeFormat
}

// Validate checks if the volume spec is valid.
func (v VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %q (must be qcow2 or raw)", v.Format)
	}
	if v.CapacityBytes == 0 {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	if v.BackingPath != "" && v.Format != VolumeFormatQCOW2 {
		return fmt.Errorf("backing volumes are only supported for qcow2 format")
	}
	return nil
}

// VolumeInfo describes an existing volume.
type VolumeInfo struct {
	Name       string
	Pool       string
	Path       string
	Capacity   uint64
	Allocation uint64
}

// CapacityGB returns the volume capacity in GB.
func (v VolumeInfo) CapacityGB() float64 {
	return float64(v.Capacity) / gib
}

// Config names the pools the Manager works with. Zero fields take the
// Default* values.
type Config struct {
	ImagesPool string
	ImagesPath string
	VMsPool    string
	VMsPath    string
	Owner      Owner
}

const (
	DefaultImagesPool = "thoth-images"
	DefaultVMsPool    = "thoth-vms"
	DefaultImagesPath = "/var/lib/libvirt/images/thoth/images"
	DefaultVMsPath    = "/var/lib/libvirt/images/thoth/vms"
)

func (c Config) withDefaults() Config {
	if c.ImagesPool == "" {
		c.ImagesPool = DefaultImagesPool
	}
	if c.ImagesPath == "" {
		c.ImagesPath = DefaultImagesPath
	}
	if c.VMsPool == "" {
		c.VMsPool = DefaultVMsPool
	}
	if c.VMsPath == "" {
		c.VMsPath = DefaultVMsPath
	}
	if c.Owner == (Owner{}) {
		c.Owner = FallbackOwner
	}
	return c
}
