package vm

import (
	"context"
	"errors"
	"slices"

	"github.com/digitalocean/go-libvirt"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/remote"
)

var errSnapshotNameRequired = errors.New("snapshot name is required")

// ListSnapshots lists the snapshots of a domain, oldest first.
func (b *Backend) ListSnapshots(ctx context.Context, name string) ([]remote.Snapshot, error) {
	const op = "list snapshots"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}

	snaps, _, err := b.lv.DomainListAllSnapshots(dom, 1, 0)
	if err != nil {
		return nil, classify(op, name, err)
	}

	out := make([]remote.Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		rec := remote.Snapshot{Name: snap.Name}

		xmlDesc, err := b.lv.DomainSnapshotGetXMLDesc(snap, 0)
		if err != nil {
			b.log.Debugw("failed to read snapshot XML", "name", name, "snapshot", snap.Name, "error", err)
			out = append(out, rec)
			continue
		}
		info, err := thothlibvirt.ParseSnapshotXML(xmlDesc)
		if err != nil {
			b.log.Debugw("failed to parse snapshot XML", "name", name, "snapshot", snap.Name, "error", err)
			out = append(out, rec)
			continue
		}
		rec.CreationTime = info.CreationTime
		rec.Description = info.Description
		rec.State = info.State
		out = append(out, rec)
	}

	slices.SortStableFunc(out, func(a, b remote.Snapshot) int {
		return a.CreationTime.Compare(b.CreationTime)
	})
	return out, nil
}

// CreateSnapshot takes a snapshot of a domain. An empty description is
// replaced with remote.DefaultSnapshotDescription.
func (b *Backend) CreateSnapshot(ctx context.Context, name, snapshotName, description string) error {
	const op = "create snapshot"
	if snapshotName == "" {
		return remote.Validation(op, errSnapshotNameRequired)
	}
	if description == "" {
		description = remote.DefaultSnapshotDescription
	}

	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return err
	}

	xmlDesc, err := thothlibvirt.GenerateSnapshotXML(snapshotName, description)
	if err != nil {
		return remote.Validation(op, err)
	}

	b.log.Infow("creating snapshot", "name", name, "snapshot", snapshotName)
	if _, err := b.lv.DomainSnapshotCreateXML(dom, xmlDesc, 0); err != nil {
		return classify(op, name, err)
	}
	return nil
}

// RevertSnapshot returns a domain to a snapshot. Running domains are not
// refused; libvirt restores whatever state the snapshot captured.
func (b *Backend) RevertSnapshot(ctx context.Context, name, snapshotName string) error {
	const op = "revert snapshot"
	snap, err := b.lookupSnapshot(ctx, op, name, snapshotName)
	if err != nil {
		return err
	}

	b.log.Infow("reverting to snapshot", "name", name, "snapshot", snapshotName)
	if err := b.lv.DomainRevertToSnapshot(snap, 0); err != nil {
		return classify(op, name, err)
	}
	return nil
}

// DeleteSnapshot removes one snapshot and its data.
func (b *Backend) DeleteSnapshot(ctx context.Context, name, snapshotName string) error {
	const op = "delete snapshot"
	snap, err := b.lookupSnapshot(ctx, op, name, snapshotName)
	if err != nil {
		return err
	}

	b.log.Infow("deleting snapshot", "name", name, "snapshot", snapshotName)
	if err := b.lv.DomainSnapshotDelete(snap, 0); err != nil {
		return classify(op, name, err)
	}
	return nil
}

func (b *Backend) lookupSnapshot(ctx context.Context, op, name, snapshotName string) (libvirt.DomainSnapshot, error) {
	if snapshotName == "" {
		return libvirt.DomainSnapshot{}, remote.Validation(op, errSnapshotNameRequired)
	}
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return libvirt.DomainSnapshot{}, err
	}
	snap, err := b.lv.DomainSnapshotLookupByName(dom, snapshotName, 0)
	if err != nil {
		return libvirt.DomainSnapshot{}, classify(op, name+"/"+snapshotName, err)
	}
	return snap, nil
}
