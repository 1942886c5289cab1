package storage

import (
	"context"
	"fmt"
	"strings"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool creates a directory pool at path unless one named name exists.
func (m *Manager) EnsurePool(ctx context.Context, name, path string) error {
	if _, err := m.client.StoragePoolLookupByName(name); err == nil {
		return nil
	}
	return m.CreatePool(ctx, name, path)
}

// CreatePool defines, builds, starts and autostarts a directory pool. A pool
// that fails to build or start is undefined again.
func (m *Manager) CreatePool(_ context.Context, name, path string) error {
	poolXML, err := generateDirPoolXML(name, path, m.cfg.Owner)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool %s: %w", name, err)
	}

	if err := m.client.StoragePoolBuild(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to build pool %s: %w", name, err)
	}

	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to start pool %s: %w", name, err)
	}

	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		return fmt.Errorf("pool %s created but failed to set autostart: %w", name, err)
	}
	return nil
}

func generateDirPoolXML(name, path string, owner Owner) (string, error) {
	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Owner: owner.UID,
				Group: owner.GID,
				Mode:  "0755",
			},
		},
	}

	xml, err := pool.Marshal()
	if err != nil {
		return "", err
	}
	return stripXMLHeader(xml), nil
}

func stripXMLHeader(xml string) string {
	xml = strings.TrimPrefix(xml, `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(xml)
}
