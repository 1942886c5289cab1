package storage

import (
	"context"
	"errors"
	"testing"

	libvirtxml "libvirt.org/go/libvirtxml"
)

func TestManager_CreateVolume(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
		spec     VolumeSpec
		setup    func(*mockLibvirtClient)
		wantErr  bool
	}{
		{
			name:     "create boot disk",
			poolName: DefaultVMsPool,
			spec:     VolumeSpec{Name: "web01_boot.qcow2", Format: VolumeFormatQCOW2, CapacityBytes: 20 * gib},
			setup:    func(m *mockLibvirtClient) { m.addPool(DefaultVMsPool) },
		},
		{
			name:     "create overlay with raw backing file",
			poolName: DefaultVMsPool,
			spec: VolumeSpec{
				Name:          "web01_boot.qcow2",
				Format:        VolumeFormatQCOW2,
				CapacityBytes: 20 * gib,
				BackingPath:   "/pools/thoth-images/cloud.img",
				BackingFormat: VolumeFormatRaw,
			},
			setup: func(m *mockLibvirtClient) { m.addPool(DefaultVMsPool) },
		},
		{
			name:     "create raw seed",
			poolName: DefaultVMsPool,
			spec:     VolumeSpec{Name: "web01_cloudinit.iso", Format: VolumeFormatRaw, CapacityBytes: 4096},
			setup:    func(m *mockLibvirtClient) { m.addPool(DefaultVMsPool) },
		},
		{
			name:     "zero capacity",
			poolName: DefaultVMsPool,
			spec:     VolumeSpec{Name: "web01_boot.qcow2", Format: VolumeFormatQCOW2},
			setup:    func(m *mockLibvirtClient) { m.addPool(DefaultVMsPool) },
			wantErr:  true,
		},
		{
			name:     "pool not found",
			poolName: "missing-pool",
			spec:     VolumeSpec{Name: "web01_boot.qcow2", Format: VolumeFormatQCOW2, CapacityBytes: gib},
			setup:    func(m *mockLibvirtClient) {},
			wantErr:  true,
		},
		{
			name:     "volume already exists",
			poolName: DefaultVMsPool,
			spec:     VolumeSpec{Name: "web01_boot.qcow2", Format: VolumeFormatQCOW2, CapacityBytes: gib},
			setup: func(m *mockLibvirtClient) {
				m.addPool(DefaultVMsPool)
				m.addVolume(DefaultVMsPool, "web01_boot.qcow2", gib)
			},
			wantErr: true,
		},
		{
			name:     "libvirt refuses the volume",
			poolName: DefaultVMsPool,
			spec:     VolumeSpec{Name: "web01_boot.qcow2", Format: VolumeFormatQCOW2, CapacityBytes: gib},
			setup: func(m *mockLibvirtClient) {
				m.addPool(DefaultVMsPool)
				m.createVolErr = errors.New("no space left on device")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, client := newTestManager()
			tt.setup(client)

			info, err := m.CreateVolume(context.Background(), tt.poolName, tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateVolume failed: %v", err)
			}
			if info.Pool != tt.poolName || info.Capacity != tt.spec.CapacityBytes {
				t.Errorf("unexpected volume info %+v", info)
			}

			vol := client.volume(tt.poolName, tt.spec.Name)
			if vol == nil {
				t.Fatal("expected volume to exist")
			}
			var def libvirtxml.StorageVolume
			if err := def.Unmarshal(vol.xml); err != nil {
				t.Fatalf("volume XML does not parse: %v", err)
			}
			if def.Target.Format.Type != string(tt.spec.Format) {
				t.Errorf("expected format %s, got %s", tt.spec.Format, def.Target.Format.Type)
			}
			if def.Target.Permissions.Owner != testOwner.UID || def.Target.Permissions.Group != testOwner.GID {
				t.Errorf("expected volume owned by qemu account, got %+v", def.Target.Permissions)
			}
			switch {
			case tt.spec.BackingPath == "" && def.BackingStore != nil:
				t.Errorf("unexpected backing store %+v", def.BackingStore)
			case tt.spec.BackingPath != "":
				if def.BackingStore == nil || def.BackingStore.Path != tt.spec.BackingPath {
					t.Fatalf("expected backing store %s, got %+v", tt.spec.BackingPath, def.BackingStore)
				}
				if def.BackingStore.Format.Type != string(tt.spec.BackingFormat) {
					t.Errorf("expected backing format %s, got %s", tt.spec.BackingFormat, def.BackingStore.Format.Type)
				}
			}
		})
	}
}

func TestManager_CreateOverlay(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultImagesPool)
	client.addPool(DefaultVMsPool)
	client.addVolume(DefaultImagesPool, "ubuntu-22.04.qcow2", 3*gib)

	info, err := m.CreateOverlay(ctx, "web01_boot.qcow2", "ubuntu-22.04.qcow2", 20)
	if err != nil {
		t.Fatalf("CreateOverlay failed: %v", err)
	}
	if info.Path != "/pools/thoth-vms/web01_boot.qcow2" {
		t.Errorf("unexpected path %s", info.Path)
	}

	vol := client.volume(DefaultVMsPool, "web01_boot.qcow2")
	if vol == nil {
		t.Fatal("expected overlay volume to exist")
	}
	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(vol.xml); err != nil {
		t.Fatalf("volume XML does not parse: %v", err)
	}
	if def.Capacity.Value != 20*gib {
		t.Errorf("expected capacity %d, got %d", uint64(20*gib), def.Capacity.Value)
	}
	if def.Target.Format.Type != "qcow2" {
		t.Errorf("expected qcow2 overlay, got %s", def.Target.Format.Type)
	}
	if def.BackingStore == nil || def.BackingStore.Path != "/pools/thoth-images/ubuntu-22.04.qcow2" {
		t.Errorf("expected backing store on the base image, got %+v", def.BackingStore)
	}
}

func TestManager_CreateOverlay_MissingImage(t *testing.T) {
	m, client := newTestManager()
	client.addPool(DefaultImagesPool)
	client.addPool(DefaultVMsPool)

	if _, err := m.CreateOverlay(context.Background(), "web01_boot.qcow2", "nope.qcow2", 20); err == nil {
		t.Fatal("expected error for missing base image, got nil")
	}
	if len(client.volumes[DefaultVMsPool]) != 0 {
		t.Error("expected no volume to be created")
	}
}

func TestManager_CreateSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads data", func(t *testing.T) {
		m, client := newTestManager()
		client.addPool(DefaultVMsPool)

		if _, err := m.CreateSeed(ctx, "web01_cloudinit.iso", []byte("iso-bytes")); err != nil {
			t.Fatalf("CreateSeed failed: %v", err)
		}
		vol := client.volume(DefaultVMsPool, "web01_cloudinit.iso")
		if vol == nil || string(vol.data) != "iso-bytes" {
			t.Fatalf("expected uploaded seed data, got %+v", vol)
		}
		if vol.capacity != uint64(len("iso-bytes")) {
			t.Errorf("expected capacity to match data length, got %d", vol.capacity)
		}
	})

	t.Run("failed upload removes volume", func(t *testing.T) {
		m, client := newTestManager()
		client.addPool(DefaultVMsPool)
		client.uploadErr = errors.New("stream closed")

		if _, err := m.CreateSeed(ctx, "web01_cloudinit.iso", []byte("iso-bytes")); err == nil {
			t.Fatal("expected error, got nil")
		}
		if client.volume(DefaultVMsPool, "web01_cloudinit.iso") != nil {
			t.Error("expected volume to be deleted after failed upload")
		}
	})

	t.Run("empty data", func(t *testing.T) {
		m, client := newTestManager()
		client.addPool(DefaultVMsPool)
		if _, err := m.CreateSeed(ctx, "web01_cloudinit.iso", nil); err == nil {
			t.Fatal("expected error for empty seed, got nil")
		}
	})
}

func TestManager_CloneVolume(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultVMsPool)
	client.addVolume(DefaultVMsPool, "web01_boot.qcow2", 20*gib)

	info, err := m.CloneVolume(ctx, "/pools/thoth-vms/web01_boot.qcow2", "web02_boot.qcow2")
	if err != nil {
		t.Fatalf("CloneVolume failed: %v", err)
	}
	if info.Path != "/pools/thoth-vms/web02_boot.qcow2" || info.Pool != DefaultVMsPool {
		t.Errorf("unexpected clone info %+v", info)
	}
	if len(client.clonedFrom) != 1 || client.clonedFrom[0] != "web01_boot.qcow2" {
		t.Errorf("expected clone from web01_boot.qcow2, got %v", client.clonedFrom)
	}
	if client.volume(DefaultVMsPool, "web02_boot.qcow2").capacity != 20*gib {
		t.Error("expected clone to keep source capacity")
	}

	if _, err := m.CloneVolume(ctx, "/pools/thoth-vms/missing.qcow2", "x.qcow2"); err == nil {
		t.Error("expected error cloning a missing volume")
	}
}

func TestManager_DeleteVolume(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultVMsPool)
	client.addVolume(DefaultVMsPool, "a.qcow2", gib)
	client.addVolume(DefaultVMsPool, "b.qcow2", gib)

	if err := m.DeleteVolume(ctx, DefaultVMsPool, "a.qcow2"); err != nil {
		t.Fatalf("DeleteVolume failed: %v", err)
	}
	if err := m.DeleteVolumeByPath(ctx, "/pools/thoth-vms/b.qcow2"); err != nil {
		t.Fatalf("DeleteVolumeByPath failed: %v", err)
	}
	if len(client.volumes[DefaultVMsPool]) != 0 {
		t.Errorf("expected pool to be empty, got %d volumes", len(client.volumes[DefaultVMsPool]))
	}
	if err := m.DeleteVolume(ctx, DefaultVMsPool, "a.qcow2"); err == nil {
		t.Error("expected error deleting a missing volume")
	}
}

func TestManager_DeleteVolumeByPath_Missing(t *testing.T) {
	m, client := newTestManager()
	client.addPool(DefaultVMsPool)

	if err := m.DeleteVolumeByPath(context.Background(), "/pools/thoth-vms/gone.qcow2"); err == nil {
		t.Error("expected error deleting a missing path")
	}
}

func TestManager_GetVolumePath(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultImagesPool)
	client.addVolume(DefaultImagesPool, "debian-12.qcow2", 2*gib)

	path, err := m.GetVolumePath(ctx, DefaultImagesPool, "debian-12.qcow2")
	if err != nil {
		t.Fatalf("GetVolumePath failed: %v", err)
	}
	if path != "/pools/thoth-images/debian-12.qcow2" {
		t.Errorf("unexpected path %s", path)
	}

	if _, err := m.GetVolumePath(ctx, DefaultImagesPool, "fedora.qcow2"); err == nil {
		t.Error("expected error for missing volume")
	}
	if _, err := m.GetVolumePath(ctx, "nope", "debian-12.qcow2"); err == nil {
		t.Error("expected error for missing pool")
	}
}

func TestManager_WriteVolumeData(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultVMsPool)
	client.addVolume(DefaultVMsPool, "web01_cloudinit.iso", 16)

	if err := m.WriteVolumeData(ctx, DefaultVMsPool, "web01_cloudinit.iso", []byte("payload")); err != nil {
		t.Fatalf("WriteVolumeData failed: %v", err)
	}
	if got := string(client.volume(DefaultVMsPool, "web01_cloudinit.iso").data); got != "payload" {
		t.Errorf("expected uploaded payload, got %q", got)
	}

	if err := m.WriteVolumeData(ctx, DefaultVMsPool, "missing.iso", []byte("x")); err == nil {
		t.Error("expected error writing to a missing volume")
	}

	client.uploadErr = errors.New("stream closed")
	if err := m.WriteVolumeData(ctx, DefaultVMsPool, "web01_cloudinit.iso", []byte("x")); err == nil {
		t.Error("expected upload failure to be returned")
	}
}

func TestManager_VolumeExistsAndList(t *testing.T) {
	ctx := context.Background()
	m, client := newTestManager()
	client.addPool(DefaultImagesPool)
	client.addVolume(DefaultImagesPool, "debian-12.qcow2", 2*gib)

	ok, err := m.ImageExists(ctx, "debian-12.qcow2")
	if err != nil || !ok {
		t.Errorf("expected image to exist, got %v, %v", ok, err)
	}
	ok, err = m.ImageExists(ctx, "fedora.qcow2")
	if err != nil || ok {
		t.Errorf("expected image to be missing without error, got %v, %v", ok, err)
	}
	if _, err := m.VolumeExists(ctx, "nope", "x"); err == nil {
		t.Error("expected error for missing pool")
	}

	vols, err := m.ListVolumes(ctx, DefaultImagesPool)
	if err != nil {
		t.Fatalf("ListVolumes failed: %v", err)
	}
	if len(vols) != 1 || vols[0].CapacityGB() != 2 {
		t.Errorf("unexpected volumes %+v", vols)
	}
}
