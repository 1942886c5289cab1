package vm

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/naming"
	"github.com/jbweber/thoth/internal/poll"
	"github.com/jbweber/thoth/internal/remote"
)

// DeleteResource removes a domain.
//
// This orchestrates the entire removal:
//  1. Graceful shutdown if running, polled up to ShutdownTimeout
//  2. Force destroy if still active
//  3. Delete snapshot metadata
//  4. Undefine domain (managed save and snapshot metadata included)
//  5. Delete the disk volumes, when removeDisks is set
//
// Volume cleanup is best-effort - if volumes can't be deleted, warnings are
// logged but the operation succeeds.
func (b *Backend) DeleteResource(ctx context.Context, name string, removeDisks bool) error {
	const op = "delete"

	// Step 1: Check if VM exists
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return err
	}

	// The disk list must be read before the definition is gone.
	var disks []thothlibvirt.Disk
	if removeDisks {
		xmlDesc, err := b.inactiveXML(dom)
		if err != nil {
			return classify(op, name, err)
		}
		desc, err := thothlibvirt.ParseDomain(xmlDesc)
		if err != nil {
			return remote.Rejected(op, name, err)
		}
		disks = desc.Disks
	}

	// Step 2: Stop it
	if err := b.stopForDelete(ctx, dom); err != nil {
		return classify(op, name, err)
	}

	// Step 3: Snapshot metadata
	snaps, _, err := b.lv.DomainListAllSnapshots(dom, 1, 0)
	if err != nil {
		b.log.Warnw("failed to list snapshots", "name", name, "error", err)
	}
	for _, snap := range snaps {
		if err := b.lv.DomainSnapshotDelete(snap, libvirt.DomainSnapshotDeleteMetadataOnly); err != nil {
			b.log.Warnw("failed to delete snapshot metadata", "name", name, "snapshot", snap.Name, "error", err)
		}
	}

	// Step 4: Undefine
	b.log.Infow("undefining domain", "name", name)
	flags := libvirt.DomainUndefineManagedSave | libvirt.DomainUndefineSnapshotsMetadata
	if err := b.lv.DomainUndefineFlags(dom, flags); err != nil {
		b.log.Debugw("undefine with flags failed, retrying without", "name", name, "error", err)
		if err := b.lv.DomainUndefine(dom); err != nil {
			return classify(op, name, err)
		}
	}
	b.forgetCPU(name)

	// Step 5: Storage
	if removeDisks {
		b.removeDisks(ctx, name, disks)
	}

	b.log.Infow("domain deleted", "name", name, "removeDisks", removeDisks)
	return nil
}

// stopForDelete brings dom to an inactive state.
func (b *Backend) stopForDelete(ctx context.Context, dom libvirt.Domain) error {
	state, err := b.state(dom)
	if err != nil {
		return err
	}

	switch state {
	case domainStateRunning:
		if b.shutdownAndWait(ctx, dom) {
			return nil
		}
	case domainStatePaused, domainStateBlocked:
		// A paused guest cannot react to ACPI.
	default:
		return nil
	}

	b.log.Infow("force destroying domain", "name", dom.Name)
	if err := b.lv.DomainDestroy(dom); err != nil {
		// It may have stopped on its own in the meantime.
		if state, serr := b.state(dom); serr == nil && state == domainStateShutoff {
			return nil
		}
		return fmt.Errorf("failed to destroy domain: %w", err)
	}
	return nil
}

// shutdownAndWait requests a graceful shutdown and polls until the domain
// is shut off. It reports whether it got there within ShutdownTimeout.
func (b *Backend) shutdownAndWait(ctx context.Context, dom libvirt.Domain) bool {
	b.log.Infow("attempting graceful shutdown", "name", dom.Name, "timeout", b.cfg.ShutdownTimeout)
	if err := b.lv.DomainShutdown(dom); err != nil {
		b.log.Warnw("graceful shutdown failed", "name", dom.Name, "error", err)
		return false
	}

	res, err := poll.Poll(ctx, func(context.Context) (struct{}, bool, error) {
		state, err := b.state(dom)
		if err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, state == domainStateShutoff, nil
	}, b.cfg.ShutdownInterval, b.cfg.ShutdownTimeout, poll.WithClock(b.cfg.Clock))
	if err != nil {
		return false
	}
	if res.TimedOut() {
		b.log.Warnw("graceful shutdown timed out", "name", dom.Name, "attempts", res.Attempts)
		return false
	}
	b.log.Infow("domain shut down gracefully", "name", dom.Name, "elapsed", res.Elapsed)
	return true
}

// removeDisks deletes the storage behind disks. Shared cdrom media (install
// ISOs) is left alone; only seed ISOs named after the VM are removed.
func (b *Backend) removeDisks(ctx context.Context, name string, disks []thothlibvirt.Disk) {
	deleted := 0
	for _, d := range disks {
		if d.Device == "cdrom" && !naming.OwnsVolume(name, d.Volume+d.File) {
			continue
		}

		var err error
		switch {
		case d.Volume != "":
			err = b.sm.DeleteVolume(ctx, d.Pool, d.Volume)
		case d.File != "":
			err = b.sm.DeleteVolumeByPath(ctx, d.File)
		default:
			continue
		}
		if err != nil {
			b.log.Warnw("failed to delete volume", "name", name, "target", d.Target, "error", err)
			continue
		}
		deleted++
	}
	b.log.Infow("storage cleanup complete", "name", name, "deleted", deleted)
}
