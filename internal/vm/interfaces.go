package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thoth/internal/metadata"
	"github.com/jbweber/thoth/internal/storage"
)

// libvirtClient defines the libvirt operations the backend issues.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	metadata.LibvirtClient

	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	ConnectGetLibVersion() (uint64, error)
	ConnectGetHostname() (string, error)

	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainGetInfo(Dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)

	DomainCreate(Dom libvirt.Domain) error
	DomainShutdown(Dom libvirt.Domain) error
	DomainReboot(Dom libvirt.Domain, Flags libvirt.DomainRebootFlagValues) error
	DomainSuspend(Dom libvirt.Domain) error
	DomainResume(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
	DomainUndefine(Dom libvirt.Domain) error

	DomainBlockStats(Dom libvirt.Domain, Path string) (int64, int64, int64, int64, int64, error)
	DomainInterfaceStats(Dom libvirt.Domain, Device string) (int64, int64, int64, int64, int64, int64, int64, int64, error)
	DomainInterfaceAddresses(Dom libvirt.Domain, Source uint32, Flags uint32) ([]libvirt.DomainInterface, error)

	DomainListAllSnapshots(Dom libvirt.Domain, NeedResults int32, Flags uint32) ([]libvirt.DomainSnapshot, int32, error)
	DomainSnapshotCreateXML(Dom libvirt.Domain, XMLDesc string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainSnapshotLookupByName(Dom libvirt.Domain, Name string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainSnapshotGetXMLDesc(Snap libvirt.DomainSnapshot, Flags uint32) (string, error)
	DomainRevertToSnapshot(Snap libvirt.DomainSnapshot, Flags uint32) error
	DomainSnapshotDelete(Snap libvirt.DomainSnapshot, Flags libvirt.DomainSnapshotDeleteFlags) error
}

// storageManager defines the storage operations the backend needs.
//
// In production, this is satisfied by *storage.Manager.
type storageManager interface {
	VMsPool() string
	EnsureDefaultPools(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	CreateOverlay(ctx context.Context, name, image string, capacityGB int) (storage.VolumeInfo, error)
	CreateSeed(ctx context.Context, name string, data []byte) (storage.VolumeInfo, error)
	CloneVolume(ctx context.Context, srcPath, dstName string) (storage.VolumeInfo, error)
	GetVolumePath(ctx context.Context, poolName, volumeName string) (string, error)
	DeleteVolume(ctx context.Context, poolName, volumeName string) error
	DeleteVolumeByPath(ctx context.Context, path string) error
}

// hostInfo reports facts about the hypervisor host itself.
type hostInfo interface {
	Info(ctx context.Context) (platform, kernel string, cpus int, memoryKB uint64, err error)
}
