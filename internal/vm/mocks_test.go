package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thoth/internal/storage"
)

func errNoDomain(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: fmt.Sprintf("Domain not found: no domain with matching name '%s'", name)}
}

// mockLibvirtClient is a mock implementation of the libvirtClient interface
// for testing. Domains registered with addDomain are found by lookup; every
// other behavior is configurable through the Func fields.
type mockLibvirtClient struct {
	mu sync.Mutex

	domains  map[string]libvirt.Domain
	states   map[string]int32
	xml      map[string]string
	metadata map[string]string

	// Configurable behavior
	domainLookupByNameFunc       func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc          func(xml string) (libvirt.Domain, error)
	domainGetInfoFunc            func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainCreateFunc             func(dom libvirt.Domain) error
	domainShutdownFunc           func(dom libvirt.Domain) error
	domainRebootFunc             func(dom libvirt.Domain) error
	domainDestroyFunc            func(dom libvirt.Domain) error
	domainUndefineFlagsFunc      func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	domainUndefineFunc           func(dom libvirt.Domain) error
	domainBlockStatsFunc         func(dom libvirt.Domain, path string) (int64, int64, int64, int64, int64, error)
	domainInterfaceStatsFunc     func(dom libvirt.Domain, device string) (int64, int64, int64, int64, int64, int64, int64, int64, error)
	domainInterfaceAddressesFunc func(dom libvirt.Domain, source uint32) ([]libvirt.DomainInterface, error)
	domainSetMetadataFunc        func(dom libvirt.Domain, metadata string) error
	snapshots                    map[string][]libvirt.DomainSnapshot
	snapshotXML                  map[string]string
	snapshotCreateFunc           func(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error)

	// Call tracking
	domainDefineXMLCalls     []string
	domainCreateCalls        []libvirt.Domain
	domainShutdownCalls      []libvirt.Domain
	domainRebootCalls        []libvirt.Domain
	domainSuspendCalls       []libvirt.Domain
	domainResumeCalls        []libvirt.Domain
	domainDestroyCalls       []libvirt.Domain
	domainUndefineFlagsCalls []libvirt.DomainUndefineFlagsValues
	domainUndefineCalls      []libvirt.Domain
	domainGetStateCalls      int
	blockStatsCalls          []string
	interfaceStatsCalls      []string
	addressSourceCalls       []uint32
	snapshotCreateCalls      []string
	snapshotRevertCalls      []string
	snapshotDeleteCalls      []string
	snapshotDeleteFlags      []libvirt.DomainSnapshotDeleteFlags
}

// newMockLibvirtClient creates a new mock libvirt client with default behavior.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{
		domains:     make(map[string]libvirt.Domain),
		states:      make(map[string]int32),
		xml:         make(map[string]string),
		metadata:    make(map[string]string),
		snapshots:   make(map[string][]libvirt.DomainSnapshot),
		snapshotXML: make(map[string]string),
	}

	// Default: lookup finds registered domains only
	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		if dom, ok := m.domains[name]; ok {
			return dom, nil
		}
		return libvirt.Domain{}, errNoDomain(name)
	}

	// Default: define registers a shut off domain named like the XML
	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		name := between(xml, "<name>", "</name>")
		dom := libvirt.Domain{Name: name, ID: -1}
		m.domains[name] = dom
		m.states[name] = domainStateShutoff
		m.xml[name] = xml
		return dom, nil
	}

	// Default: 2 GiB of 4 GiB in use on 2 vCPUs
	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return uint8(m.states[dom.Name]), 4194304, 2097152, 2, 0, nil
	}

	m.domainCreateFunc = func(dom libvirt.Domain) error {
		m.states[dom.Name] = domainStateRunning
		return nil
	}

	// Default: the guest ignores ACPI shutdown
	m.domainShutdownFunc = func(dom libvirt.Domain) error { return nil }

	m.domainRebootFunc = func(dom libvirt.Domain) error { return nil }

	m.domainDestroyFunc = func(dom libvirt.Domain) error {
		m.states[dom.Name] = domainStateShutoff
		return nil
	}

	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
		delete(m.domains, dom.Name)
		return nil
	}

	m.domainUndefineFunc = func(dom libvirt.Domain) error {
		delete(m.domains, dom.Name)
		return nil
	}

	m.domainBlockStatsFunc = func(dom libvirt.Domain, path string) (int64, int64, int64, int64, int64, error) {
		return 10, 2 * 1024 * 1024, 5, 1024 * 1024, 0, nil
	}

	m.domainInterfaceStatsFunc = func(dom libvirt.Domain, device string) (int64, int64, int64, int64, int64, int64, int64, int64, error) {
		return 3 * 1024 * 1024, 0, 0, 0, 1024 * 1024, 0, 0, 0, nil
	}

	m.domainInterfaceAddressesFunc = func(dom libvirt.Domain, source uint32) ([]libvirt.DomainInterface, error) {
		return nil, nil
	}

	m.domainSetMetadataFunc = func(dom libvirt.Domain, metadata string) error {
		m.metadata[dom.Name] = metadata
		return nil
	}

	m.snapshotCreateFunc = func(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error) {
		snap := libvirt.DomainSnapshot{Name: between(xml, "<name>", "</name>"), Dom: dom}
		m.snapshots[dom.Name] = append(m.snapshots[dom.Name], snap)
		return snap, nil
	}

	return m
}

// addDomain registers a domain with its state and XML description.
func (m *mockLibvirtClient) addDomain(name string, id int32, state int32, xml string) libvirt.Domain {
	dom := libvirt.Domain{Name: name, ID: id}
	m.domains[name] = dom
	m.states[name] = state
	m.xml[name] = xml
	return dom
}

func between(s, start, end string) string {
	_, rest, ok := strings.Cut(s, start)
	if !ok {
		return ""
	}
	v, _, _ := strings.Cut(rest, end)
	return v
}

func (m *mockLibvirtClient) ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]libvirt.Domain, 0, len(m.domains))
	for _, dom := range m.domains {
		out = append(out, dom)
	}
	return out, uint32(len(out)), nil
}

func (m *mockLibvirtClient) ConnectGetLibVersion() (uint64, error) {
	return 10000000, nil
}

func (m *mockLibvirtClient) ConnectGetHostname() (string, error) {
	return "hv01", nil
}

func (m *mockLibvirtClient) DomainLookupByName(Name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainLookupByNameFunc(Name)
}

func (m *mockLibvirtClient) DomainDefineXML(XML string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, XML)
	return m.domainDefineXMLFunc(XML)
}

func (m *mockLibvirtClient) DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetStateCalls++
	state, ok := m.states[Dom.Name]
	if !ok {
		return 0, 0, errNoDomain(Dom.Name)
	}
	return state, 0, nil
}

func (m *mockLibvirtClient) DomainGetInfo(Dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetInfoFunc(Dom)
}

func (m *mockLibvirtClient) DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	xml, ok := m.xml[Dom.Name]
	if !ok {
		return "", errNoDomain(Dom.Name)
	}
	return xml, nil
}

func (m *mockLibvirtClient) DomainCreate(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, Dom)
	return m.domainCreateFunc(Dom)
}

func (m *mockLibvirtClient) DomainShutdown(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, Dom)
	return m.domainShutdownFunc(Dom)
}

func (m *mockLibvirtClient) DomainReboot(Dom libvirt.Domain, Flags libvirt.DomainRebootFlagValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainRebootCalls = append(m.domainRebootCalls, Dom)
	return m.domainRebootFunc(Dom)
}

func (m *mockLibvirtClient) DomainSuspend(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSuspendCalls = append(m.domainSuspendCalls, Dom)
	m.states[Dom.Name] = domainStatePaused
	return nil
}

func (m *mockLibvirtClient) DomainResume(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainResumeCalls = append(m.domainResumeCalls, Dom)
	m.states[Dom.Name] = domainStateRunning
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, Dom)
	return m.domainDestroyFunc(Dom)
}

func (m *mockLibvirtClient) DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, Flags)
	return m.domainUndefineFlagsFunc(Dom, Flags)
}

func (m *mockLibvirtClient) DomainUndefine(Dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineCalls = append(m.domainUndefineCalls, Dom)
	return m.domainUndefineFunc(Dom)
}

func (m *mockLibvirtClient) DomainBlockStats(Dom libvirt.Domain, Path string) (int64, int64, int64, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockStatsCalls = append(m.blockStatsCalls, Path)
	return m.domainBlockStatsFunc(Dom, Path)
}

func (m *mockLibvirtClient) DomainInterfaceStats(Dom libvirt.Domain, Device string) (int64, int64, int64, int64, int64, int64, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaceStatsCalls = append(m.interfaceStatsCalls, Device)
	return m.domainInterfaceStatsFunc(Dom, Device)
}

func (m *mockLibvirtClient) DomainInterfaceAddresses(Dom libvirt.Domain, Source uint32, Flags uint32) ([]libvirt.DomainInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addressSourceCalls = append(m.addressSourceCalls, Source)
	return m.domainInterfaceAddressesFunc(Dom, Source)
}

func (m *mockLibvirtClient) DomainListAllSnapshots(Dom libvirt.Domain, NeedResults int32, Flags uint32) ([]libvirt.DomainSnapshot, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[Dom.Name]
	return snaps, int32(len(snaps)), nil
}

func (m *mockLibvirtClient) DomainSnapshotCreateXML(Dom libvirt.Domain, XMLDesc string, Flags uint32) (libvirt.DomainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotCreateCalls = append(m.snapshotCreateCalls, XMLDesc)
	return m.snapshotCreateFunc(Dom, XMLDesc)
}

func (m *mockLibvirtClient) DomainSnapshotLookupByName(Dom libvirt.Domain, Name string, Flags uint32) (libvirt.DomainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.snapshots[Dom.Name] {
		if snap.Name == Name {
			return snap, nil
		}
	}
	return libvirt.DomainSnapshot{}, libvirt.Error{Code: uint32(libvirt.ErrNoDomainSnapshot), Message: "Domain snapshot not found"}
}

func (m *mockLibvirtClient) DomainSnapshotGetXMLDesc(Snap libvirt.DomainSnapshot, Flags uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	xml, ok := m.snapshotXML[Snap.Name]
	if !ok {
		return "", fmt.Errorf("no XML for snapshot %s", Snap.Name)
	}
	return xml, nil
}

func (m *mockLibvirtClient) DomainRevertToSnapshot(Snap libvirt.DomainSnapshot, Flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotRevertCalls = append(m.snapshotRevertCalls, Snap.Name)
	return nil
}

func (m *mockLibvirtClient) DomainSnapshotDelete(Snap libvirt.DomainSnapshot, Flags libvirt.DomainSnapshotDeleteFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotDeleteCalls = append(m.snapshotDeleteCalls, Snap.Name)
	m.snapshotDeleteFlags = append(m.snapshotDeleteFlags, Flags)
	return nil
}

func (m *mockLibvirtClient) DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var data string
	if len(Metadata) > 0 {
		data = Metadata[0]
	}
	return m.domainSetMetadataFunc(Dom, data)
}

func (m *mockLibvirtClient) DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.metadata[Dom.Name]
	if !ok {
		return "", fmt.Errorf("metadata not found for %s", Dom.Name)
	}
	return data, nil
}

// mockStorageManager is a mock implementation of the storageManager
// interface for testing. Volumes live in a map keyed by "pool/name".
type mockStorageManager struct {
	mu sync.Mutex

	volumes map[string]string // pool/name -> path
	images  map[string]bool

	// Configurable behavior
	ensureDefaultPoolsFunc func(ctx context.Context) error
	createOverlayFunc      func(ctx context.Context, name, image string, capacityGB int) (storage.VolumeInfo, error)
	createSeedFunc         func(ctx context.Context, name string, data []byte) (storage.VolumeInfo, error)
	cloneVolumeFunc        func(ctx context.Context, srcPath, dstName string) (storage.VolumeInfo, error)

	// Call tracking
	ensureDefaultPoolsCalls int
	createOverlayCalls      []string
	createSeedCalls         []string
	cloneVolumeCalls        []string // format: "src->dst"
	deleteVolumeCalls       []string // format: "pool/volume"
	deleteVolumeByPathCalls []string
}

const mockVMsPool = "thoth-vms"

// newMockStorageManager creates a new mock storage manager with default behavior.
func newMockStorageManager() *mockStorageManager {
	m := &mockStorageManager{
		volumes: make(map[string]string),
		images:  map[string]bool{"ubuntu-24.04.qcow2": true},
	}

	m.ensureDefaultPoolsFunc = func(ctx context.Context) error { return nil }

	m.createOverlayFunc = func(ctx context.Context, name, image string, capacityGB int) (storage.VolumeInfo, error) {
		return m.add(mockVMsPool, name), nil
	}

	m.createSeedFunc = func(ctx context.Context, name string, data []byte) (storage.VolumeInfo, error) {
		return m.add(mockVMsPool, name), nil
	}

	m.cloneVolumeFunc = func(ctx context.Context, srcPath, dstName string) (storage.VolumeInfo, error) {
		pool := mockVMsPool
		for key, path := range m.volumes {
			if path == srcPath {
				pool, _, _ = strings.Cut(key, "/")
			}
		}
		return m.add(pool, dstName), nil
	}

	return m
}

func (m *mockStorageManager) add(pool, name string) storage.VolumeInfo {
	path := fmt.Sprintf("/var/lib/libvirt/images/%s/%s", pool, name)
	m.volumes[pool+"/"+name] = path
	return storage.VolumeInfo{Name: name, Pool: pool, Path: path}
}

func (m *mockStorageManager) VMsPool() string { return mockVMsPool }

func (m *mockStorageManager) EnsureDefaultPools(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDefaultPoolsCalls++
	return m.ensureDefaultPoolsFunc(ctx)
}

func (m *mockStorageManager) ImageExists(_ context.Context, image string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[image], nil
}

func (m *mockStorageManager) CreateOverlay(ctx context.Context, name, image string, capacityGB int) (storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createOverlayCalls = append(m.createOverlayCalls, fmt.Sprintf("%s<-%s:%d", name, image, capacityGB))
	return m.createOverlayFunc(ctx, name, image, capacityGB)
}

func (m *mockStorageManager) CreateSeed(ctx context.Context, name string, data []byte) (storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createSeedCalls = append(m.createSeedCalls, name)
	return m.createSeedFunc(ctx, name, data)
}

func (m *mockStorageManager) CloneVolume(ctx context.Context, srcPath, dstName string) (storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloneVolumeCalls = append(m.cloneVolumeCalls, srcPath+"->"+dstName)
	return m.cloneVolumeFunc(ctx, srcPath, dstName)
}

func (m *mockStorageManager) GetVolumePath(_ context.Context, poolName, volumeName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.volumes[poolName+"/"+volumeName]
	if !ok {
		return "", fmt.Errorf("volume %s not found", volumeName)
	}
	return path, nil
}

func (m *mockStorageManager) DeleteVolume(_ context.Context, poolName, volumeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVolumeCalls = append(m.deleteVolumeCalls, poolName+"/"+volumeName)
	delete(m.volumes, poolName+"/"+volumeName)
	return nil
}

func (m *mockStorageManager) DeleteVolumeByPath(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVolumeByPathCalls = append(m.deleteVolumeByPathCalls, path)
	for key, p := range m.volumes {
		if p == path {
			delete(m.volumes, key)
		}
	}
	return nil
}

// mockHost is a fixed hostInfo.
type mockHost struct {
	err error
}

func (h mockHost) Info(context.Context) (string, string, int, uint64, error) {
	if h.err != nil {
		return "", "", 0, 0, h.err
	}
	return "fedora 42", "6.14.0", 16, 65536000, nil
}
