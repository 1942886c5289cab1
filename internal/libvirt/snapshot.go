package libvirt

import (
	"fmt"
	"strconv"
	"time"

	"libvirt.org/go/libvirtxml"
)

// SnapshotInfo is the parsed form of a domain snapshot's XML.
type SnapshotInfo struct {
	Name         string
	Description  string
	State        string
	CreationTime time.Time
}

// GenerateSnapshotXML renders <domainsnapshot> with a name and description.
func GenerateSnapshotXML(name, description string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot name is required")
	}
	snap := &libvirtxml.DomainSnapshot{
		Name:        name,
		Description: description,
	}
	xml, err := snap.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot XML: %w", err)
	}
	return xml, nil
}

// ParseSnapshotXML reads the fields thoth reports from snapshot XML.
// creationTime is seconds since the epoch.
func ParseSnapshotXML(xmlDesc string) (SnapshotInfo, error) {
	var snap libvirtxml.DomainSnapshot
	if err := snap.Unmarshal(xmlDesc); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to parse snapshot XML: %w", err)
	}

	info := SnapshotInfo{
		Name:        snap.Name,
		Description: snap.Description,
		State:       snap.State,
	}
	if snap.CreationTime != "" {
		secs, err := strconv.ParseInt(snap.CreationTime, 10, 64)
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("invalid snapshot creationTime %q: %w", snap.CreationTime, err)
		}
		info.CreationTime = time.Unix(secs, 0).UTC()
	}
	return info, nil
}
