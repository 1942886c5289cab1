package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// ClonedDisk says where the copy of one source disk lives. Volume-backed
// source disks are pointed at Pool/Volume, file-backed ones at Path.
type ClonedDisk struct {
	Pool   string
	Volume string
	Path   string
}

// RewriteForClone turns the inactive XML of a source domain into the XML of
// its clone. The name is replaced; UUID, MAC addresses, tap device names and
// the assigned VNC port are dropped so libvirt generates fresh ones. Every
// disk whose target is in disks is repointed at its copy. cdrom devices are
// removed: the seed ISO belongs to the source domain.
func RewriteForClone(srcXML, name string, disks map[string]ClonedDisk) (string, error) {
	if name == "" {
		return "", fmt.Errorf("clone name is required")
	}

	var dom libvirtxml.Domain
	if err := dom.Unmarshal(srcXML); err != nil {
		return "", fmt.Errorf("failed to parse source domain XML: %w", err)
	}

	dom.Name = name
	dom.UUID = ""
	dom.ID = nil

	if dom.Devices != nil {
		kept := dom.Devices.Disks[:0]
		for _, disk := range dom.Devices.Disks {
			if disk.Device == "cdrom" {
				continue
			}
			if disk.Target != nil {
				if c, ok := disks[disk.Target.Dev]; ok {
					disk.Source = clonedSource(disk.Source, c)
				}
			}
			kept = append(kept, disk)
		}
		dom.Devices.Disks = kept

		for i := range dom.Devices.Interfaces {
			dom.Devices.Interfaces[i].MAC = nil
			dom.Devices.Interfaces[i].Target = nil
		}
		for i := range dom.Devices.Graphics {
			if vnc := dom.Devices.Graphics[i].VNC; vnc != nil {
				vnc.Port = -1
				vnc.AutoPort = "yes"
			}
		}
	}

	xml, err := dom.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal clone domain XML: %w", err)
	}
	return xml, nil
}

func clonedSource(src *libvirtxml.DomainDiskSource, c ClonedDisk) *libvirtxml.DomainDiskSource {
	if src != nil && src.File != nil && c.Path != "" {
		return &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{File: c.Path},
		}
	}
	return &libvirtxml.DomainDiskSource{
		Volume: &libvirtxml.DomainDiskSourceVolume{
			Pool:   c.Pool,
			Volume: c.Volume,
		},
	}
}
