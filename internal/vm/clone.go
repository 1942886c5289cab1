package vm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/metadata"
	"github.com/jbweber/thoth/internal/naming"
	"github.com/jbweber/thoth/internal/remote"
)

// CloneResource copies a domain and its disks under a new name. The clone
// is defined but not started. Cloning a running domain is allowed; its disks
// are copied as they are at that moment.
//
// Every disk gets a full copy named by naming.VolumeNameClone in the pool of
// its source. cdrom devices are not carried over. If anything fails, copies
// made so far are deleted.
func (b *Backend) CloneResource(ctx context.Context, name, cloneName string) error {
	const op = "clone"
	if cloneName == "" {
		return remote.Validation(op, errors.New("clone name is required"))
	}
	if cloneName == name {
		return remote.Validation(op, errors.New("clone name must differ from the source name"))
	}

	src, err := b.lookup(ctx, op, name)
	if err != nil {
		return err
	}

	exists, err := b.domainExists(cloneName)
	if err != nil {
		return classify(op, cloneName, err)
	}
	if exists {
		return remote.Rejected(op, cloneName, remote.ErrAlreadyExists)
	}

	srcXML, err := b.inactiveXML(src)
	if err != nil {
		return classify(op, name, err)
	}
	desc, err := thothlibvirt.ParseDomain(srcXML)
	if err != nil {
		return remote.Rejected(op, name, err)
	}

	var copies []string
	cleanup := func() {
		for _, path := range copies {
			if err := b.sm.DeleteVolumeByPath(ctx, path); err != nil {
				b.log.Warnw("failed to remove cloned volume", "path", path, "error", err)
			}
		}
	}

	disks := make(map[string]thothlibvirt.ClonedDisk)
	for _, d := range desc.Disks {
		if d.Device != "disk" || d.Target == "" {
			continue
		}

		srcPath := d.File
		if d.Volume != "" {
			srcPath, err = b.sm.GetVolumePath(ctx, d.Pool, d.Volume)
			if err != nil {
				cleanup()
				return classify(op, name, err)
			}
		}
		if srcPath == "" {
			continue
		}

		dstName := naming.VolumeNameClone(name, cloneName, filepath.Base(srcPath), d.Target)
		b.log.Infow("cloning volume", "name", name, "target", d.Target, "from", srcPath, "to", dstName)
		vol, err := b.sm.CloneVolume(ctx, srcPath, dstName)
		if err != nil {
			cleanup()
			return classify(op, name, fmt.Errorf("disk %s: %w", d.Target, err))
		}
		copies = append(copies, vol.Path)

		cd := thothlibvirt.ClonedDisk{Pool: vol.Pool, Volume: vol.Name}
		if d.File != "" {
			cd.Path = vol.Path
		}
		disks[d.Target] = cd
	}

	cloneXML, err := thothlibvirt.RewriteForClone(srcXML, cloneName, disks)
	if err != nil {
		cleanup()
		return remote.Rejected(op, name, err)
	}

	dom, err := b.lv.DomainDefineXML(cloneXML)
	if err != nil {
		cleanup()
		return classify(op, cloneName, err)
	}

	inst := metadata.LoadOrDefault(b.lv, src)
	inst.DisplayName = cloneName
	inst.ClonedFrom = name
	inst.Created = b.cfg.Clock.Now().UTC()
	if err := metadata.Store(b.lv, dom, inst); err != nil {
		b.log.Warnw("failed to store clone metadata", "name", cloneName, "error", err)
	}

	b.log.Infow("domain cloned", "name", name, "clone", cloneName, "disks", len(disks))
	return nil
}
