package libvirt

import (
	"fmt"
	"strings"

	"libvirt.org/go/libvirtxml"
)

// Disk is one block device of a parsed domain. Exactly one of Volume or File
// locates its backing storage.
type Disk struct {
	Device string // disk or cdrom
	Target string
	Bus    string
	Pool   string
	Volume string
	File   string
}

// NIC is one network interface of a parsed domain.
type NIC struct {
	MAC     string
	Network string
	Bridge  string
	Target  string // host-side tap device, only present on live XML
	Model   string
}

// DomainDescription is the subset of a domain's XML thoth reports on.
type DomainDescription struct {
	Name        string
	UUID        string
	Description string
	MemoryKB    uint64
	VCPUs       uint
	Disks       []Disk
	NICs        []NIC
	// VNCPort is the assigned VNC port, or 0 when no port is assigned yet
	// (autoport on a stopped domain) or there is no VNC device.
	VNCPort   int
	VNCListen string
}

// ParseDomain extracts a DomainDescription from domain XML.
func ParseDomain(xmlDesc string) (*DomainDescription, error) {
	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}

	d := &DomainDescription{
		Name:        dom.Name,
		UUID:        dom.UUID,
		Description: dom.Description,
	}
	if dom.Memory != nil {
		d.MemoryKB = toKiB(dom.Memory.Value, dom.Memory.Unit)
	}
	if dom.VCPU != nil {
		d.VCPUs = dom.VCPU.Value
	}
	if dom.Devices == nil {
		return d, nil
	}

	for _, disk := range dom.Devices.Disks {
		dd := Disk{Device: disk.Device}
		if dd.Device == "" {
			dd.Device = "disk"
		}
		if disk.Target != nil {
			dd.Target = disk.Target.Dev
			dd.Bus = disk.Target.Bus
		}
		if src := disk.Source; src != nil {
			switch {
			case src.Volume != nil:
				dd.Pool = src.Volume.Pool
				dd.Volume = src.Volume.Volume
			case src.File != nil:
				dd.File = src.File.File
			}
		}
		d.Disks = append(d.Disks, dd)
	}

	for _, iface := range dom.Devices.Interfaces {
		n := NIC{}
		if iface.MAC != nil {
			n.MAC = iface.MAC.Address
		}
		if src := iface.Source; src != nil {
			switch {
			case src.Network != nil:
				n.Network = src.Network.Network
			case src.Bridge != nil:
				n.Bridge = src.Bridge.Bridge
			}
		}
		if iface.Target != nil {
			n.Target = iface.Target.Dev
		}
		if iface.Model != nil {
			n.Model = iface.Model.Type
		}
		d.NICs = append(d.NICs, n)
	}

	for _, g := range dom.Devices.Graphics {
		if g.VNC == nil {
			continue
		}
		if g.VNC.Port > 0 {
			d.VNCPort = g.VNC.Port
		}
		d.VNCListen = g.VNC.Listen
		break
	}

	return d, nil
}

// PrimaryDisk returns the first disk device, preferring vda.
func (d *DomainDescription) PrimaryDisk() (Disk, bool) {
	var first *Disk
	for i := range d.Disks {
		disk := d.Disks[i]
		if disk.Device != "disk" {
			continue
		}
		if disk.Target == "vda" {
			return disk, true
		}
		if first == nil {
			first = &d.Disks[i]
		}
	}
	if first == nil {
		return Disk{}, false
	}
	return *first, true
}

// Summary renders the description as the free-form info text shown in
// resource detail views.
func (d *DomainDescription) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", d.Name)
	if d.UUID != "" {
		fmt.Fprintf(&b, "UUID: %s\n", d.UUID)
	}
	fmt.Fprintf(&b, "vCPUs: %d\n", d.VCPUs)
	fmt.Fprintf(&b, "Memory: %d MiB\n", d.MemoryKB/1024)
	for _, disk := range d.Disks {
		src := disk.File
		if disk.Volume != "" {
			src = disk.Pool + "/" + disk.Volume
		}
		fmt.Fprintf(&b, "%s %s: %s\n", disk.Device, disk.Target, src)
	}
	for _, nic := range d.NICs {
		fmt.Fprintf(&b, "interface %s: network=%s mac=%s\n", nic.Target, nic.Network, nic.MAC)
	}
	if d.VNCPort > 0 {
		fmt.Fprintf(&b, "VNC: %s:%d\n", d.VNCListen, d.VNCPort)
	}
	return b.String()
}

func toKiB(v uint, unit string) uint64 {
	n := uint64(v)
	switch strings.ToLower(unit) {
	case "b", "bytes":
		return n / 1024
	case "kb":
		return n * 1000 / 1024
	case "mb":
		return n * 1000 * 1000 / 1024
	case "m", "mib":
		return n * 1024
	case "gb":
		return n * 1000 * 1000 * 1000 / 1024
	case "g", "gib":
		return n * 1024 * 1024
	default: // "", "k", "KiB"
		return n
	}
}
