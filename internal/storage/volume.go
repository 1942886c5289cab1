package storage

import (
	"bytes"
	"context"
	"fmt"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a volume in poolName.
func (m *Manager) CreateVolume(_ context.Context, poolName string, spec VolumeSpec) (VolumeInfo, error) {
	if err := spec.Validate(); err != nil {
		return VolumeInfo{}, fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("pool %s not found: %w", poolName, err)
	}

	volumeXML, err := m.generateVolumeXML(spec)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXML(pool, volumeXML, 0)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to create volume %s: %w", spec.Name, err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to get path of volume %s: %w", spec.Name, err)
	}
	return VolumeInfo{Name: vol.Name, Pool: poolName, Path: path, Capacity: spec.CapacityBytes}, nil
}

// CreateOverlay creates a qcow2 volume in the VMs pool backed by the base
// image volume image, with a virtual size of capacityGB.
func (m *Manager) CreateOverlay(ctx context.Context, name, image string, capacityGB int) (VolumeInfo, error) {
	if capacityGB <= 0 {
		return VolumeInfo{}, fmt.Errorf("overlay capacity must be greater than 0")
	}

	backingPath, err := m.GetVolumePath(ctx, m.cfg.ImagesPool, image)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("base image %s: %w", image, err)
	}

	return m.CreateVolume(ctx, m.cfg.VMsPool, VolumeSpec{
		Name:          name,
		Format:        VolumeFormatQCOW2,
		CapacityBytes: uint64(capacityGB) * gib,
		BackingPath:   backingPath,
		BackingFormat: FormatForName(image),
	})
}

// CreateSeed creates a raw volume in the VMs pool holding data. It is used
// for cloud-init ISOs. A volume whose upload fails is deleted again.
func (m *Manager) CreateSeed(ctx context.Context, name string, data []byte) (VolumeInfo, error) {
	if len(data) == 0 {
		return VolumeInfo{}, fmt.Errorf("seed volume %s: no data", name)
	}

	info, err := m.CreateVolume(ctx, m.cfg.VMsPool, VolumeSpec{
		Name:          name,
		Format:        VolumeFormatRaw,
		CapacityBytes: uint64(len(data)),
	})
	if err != nil {
		return VolumeInfo{}, err
	}

	if err := m.WriteVolumeData(ctx, m.cfg.VMsPool, name, data); err != nil {
		_ = m.DeleteVolume(ctx, m.cfg.VMsPool, name)
		return VolumeInfo{}, err
	}
	return info, nil
}

// CloneVolume copies the volume at srcPath into a new volume dstName in
// the same pool.
func (m *Manager) CloneVolume(_ context.Context, srcPath, dstName string) (VolumeInfo, error) {
	src, err := m.client.StorageVolLookupByPath(srcPath)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("source volume %s not found: %w", srcPath, err)
	}

	_, capacity, _, err := m.client.StorageVolGetInfo(src)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to get info of %s: %w", srcPath, err)
	}

	pool, err := m.client.StoragePoolLookupByName(src.Pool)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("pool %s not found: %w", src.Pool, err)
	}

	volumeXML, err := m.generateVolumeXML(VolumeSpec{
		Name:          dstName,
		Format:        FormatForName(src.Name),
		CapacityBytes: capacity,
	})
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXMLFrom(pool, volumeXML, src, 0)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to clone %s to %s: %w", src.Name, dstName, err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to get path of volume %s: %w", dstName, err)
	}
	return VolumeInfo{Name: vol.Name, Pool: src.Pool, Path: path, Capacity: capacity}, nil
}

// GetVolumePath returns the filesystem path of poolName/volumeName.
func (m *Manager) GetVolumePath(_ context.Context, poolName, volumeName string) (string, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return "", fmt.Errorf("pool %s not found: %w", poolName, err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return "", fmt.Errorf("volume %s not found: %w", volumeName, err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}
	return path, nil
}

// DeleteVolume deletes poolName/volumeName.
func (m *Manager) DeleteVolume(_ context.Context, poolName, volumeName string) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool %s not found: %w", poolName, err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume %s not found: %w", volumeName, err)
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", volumeName, err)
	}
	return nil
}

// DeleteVolumeByPath deletes the volume stored at path.
func (m *Manager) DeleteVolumeByPath(_ context.Context, path string) error {
	vol, err := m.client.StorageVolLookupByPath(path)
	if err != nil {
		return fmt.Errorf("volume %s not found: %w", path, err)
	}
	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", path, err)
	}
	return nil
}

// VolumeExists reports whether poolName/volumeName exists. A missing pool
// is an error; a missing volume is not.
func (m *Manager) VolumeExists(_ context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool %s not found: %w", poolName, err)
	}
	if _, err := m.client.StorageVolLookupByName(pool, volumeName); err != nil {
		return false, nil
	}
	return true, nil
}

// ImageExists reports whether the images pool holds image.
func (m *Manager) ImageExists(ctx context.Context, image string) (bool, error) {
	return m.VolumeExists(ctx, m.cfg.ImagesPool, image)
}

// ListVolumes lists the volumes of poolName. Volumes whose path or info
// cannot be read are skipped.
func (m *Manager) ListVolumes(_ context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool %s not found: %w", poolName, err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	infos := make([]VolumeInfo, 0, len(volumes))
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			continue
		}
		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			continue
		}
		infos = append(infos, VolumeInfo{
			Name:       vol.Name,
			Pool:       poolName,
			Path:       path,
			Capacity:   capacity,
			Allocation: allocation,
		})
	}
	return infos, nil
}

// WriteVolumeData uploads data to the start of poolName/volumeName.
func (m *Manager) WriteVolumeData(_ context.Context, poolName, volumeName string, data []byte) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool %s not found: %w", poolName, err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume %s not found: %w", volumeName, err)
	}

	if err := m.client.StorageVolUpload(vol, bytes.NewReader(data), 0, uint64(len(data)), 0); err != nil {
		return fmt.Errorf("failed to upload data to volume %s: %w", volumeName, err)
	}
	return nil
}

func (m *Manager) generateVolumeXML(spec VolumeSpec) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityBytes,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: m.cfg.Owner.UID,
				Group: m.cfg.Owner.GID,
				Mode:  "0644",
			},
		},
	}

	if spec.BackingPath != "" {
		format := spec.BackingFormat
		if format == "" {
			format = VolumeFormatQCOW2
		}
		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: spec.BackingPath,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(format),
			},
		}
	}

	xml, err := vol.Marshal()
	if err != nil {
		return "", err
	}
	return stripXMLHeader(xml), nil
}
