package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient keeps pools and volumes in memory.
type mockLibvirtClient struct {
	mu      sync.Mutex
	pools   map[string]*mockPool
	volumes map[string]map[string]*mockVolume // pool name -> volume name -> volume

	// failures injected by tests
	createVolErr error
	uploadErr    error
	buildErr     error

	definedPoolXML []string
	clonedFrom     []string
}

type mockPool struct {
	name    string
	started bool
	auto    bool
}

type mockVolume struct {
	name     string
	path     string
	xml      string
	capacity uint64
	data     []byte
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:   make(map[string]*mockPool),
		volumes: make(map[string]map[string]*mockVolume),
	}
}

// addPool registers an existing running pool.
func (m *mockLibvirtClient) addPool(name string) {
	m.pools[name] = &mockPool{name: name, started: true}
	m.volumes[name] = make(map[string]*mockVolume)
}

// addVolume registers an existing volume.
func (m *mockLibvirtClient) addVolume(pool, name string, capacity uint64) {
	m.volumes[pool][name] = &mockVolume{
		name:     name,
		path:     "/pools/" + pool + "/" + name,
		capacity: capacity,
	}
}

func (m *mockLibvirtClient) volume(pool, name string) *mockVolume {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes[pool][name]
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool not found: %s", name)
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StoragePool{}, err
	}
	if _, ok := m.pools[def.Name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", def.Name)
	}
	m.pools[def.Name] = &mockPool{name: def.Name}
	m.volumes[def.Name] = make(map[string]*mockVolume)
	m.definedPoolXML = append(m.definedPoolXML, xml)
	return libvirt.StoragePool{Name: def.Name}, nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Name].started = true
	return nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error {
	return m.buildErr
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Name].auto = autostart == 1
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, pool.Name)
	delete(m.volumes, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []libvirt.StorageVol
	for name := range m.volumes[pool.Name] {
		result = append(result, libvirt.StorageVol{Pool: pool.Name, Name: name})
	}
	return result, uint32(len(result)), nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[pool.Name][name]; !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume not found: %s", name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolLookupByPath(path string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pool, vols := range m.volumes {
		for name, v := range vols {
			if v.path == path {
				return libvirt.StorageVol{Pool: pool, Name: name}, nil
			}
		}
	}
	return libvirt.StorageVol{}, fmt.Errorf("storage volume not found: %s", path)
}

func (m *mockLibvirtClient) create(pool, xml string) (libvirt.StorageVol, error) {
	if m.createVolErr != nil {
		return libvirt.StorageVol{}, m.createVolErr
	}
	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StorageVol{}, err
	}
	vols, ok := m.volumes[pool]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage pool not found: %s", pool)
	}
	if _, ok := vols[def.Name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", def.Name)
	}
	v := &mockVolume{name: def.Name, path: "/pools/" + pool + "/" + def.Name, xml: xml}
	if def.Capacity != nil {
		v.capacity = def.Capacity.Value
	}
	vols[def.Name] = v
	return libvirt.StorageVol{Pool: pool, Name: def.Name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(pool.Name, xml)
}

func (m *mockLibvirtClient) StorageVolCreateXMLFrom(pool libvirt.StoragePool, xml string, src libvirt.StorageVol, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clonedFrom = append(m.clonedFrom, src.Name)
	return m.create(pool.Name, xml)
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[vol.Pool][vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	delete(m.volumes[vol.Pool], vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return "", fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	return v.path, nil
}

func (m *mockLibvirtClient) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return 0, 0, 0, fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	return 0, v.capacity, uint64(len(v.data)), nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64, flags libvirt.StorageVolUploadFlags) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[vol.Pool][vol.Name].data = data
	return nil
}
