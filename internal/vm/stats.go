package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/remote"
)

// Devices sampled when the domain XML names none.
const (
	fallbackDiskDevice = "vda"
	fallbackNetDevice  = "vnet0"
)

// GetResourceStats returns one statistics reading, or nil when the domain is
// not running.
//
// CPU percent is the cumulative CPU time consumed since the previous reading
// of the same domain over the wall time elapsed, divided by its vCPU count.
// The first reading after start (or after the backend starts) reports 0.
func (b *Backend) GetResourceStats(ctx context.Context, name string) (*remote.ResourceStats, error) {
	const op = "get stats"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}

	state, err := b.state(dom)
	if err != nil {
		return nil, classify(op, name, err)
	}
	if state != domainStateRunning {
		b.forgetCPU(name)
		return nil, nil
	}

	stats, err := b.statsFor(dom)
	if err != nil {
		return nil, classify(op, name, err)
	}
	return stats, nil
}

func (b *Backend) statsFor(dom libvirt.Domain) (*remote.ResourceStats, error) {
	_, maxMemKB, memKB, vcpus, cpuTime, err := b.lv.DomainGetInfo(dom)
	if err != nil {
		return nil, err
	}

	stats := &remote.ResourceStats{
		CPUPercent: b.cpuPercent(dom.Name, cpuTime, vcpus),
		Memory: remote.MemoryStats{
			UsedKB: memKB,
			MaxKB:  maxMemKB,
		},
	}
	if maxMemKB > 0 {
		stats.Memory.Percent = float64(memKB) / float64(maxMemKB) * 100
	}

	diskDev, netDev := b.statDevices(dom)

	// A domain without the device (no disk, no tap) still gets a reading.
	if _, rdBytes, _, wrBytes, _, err := b.lv.DomainBlockStats(dom, diskDev); err == nil {
		stats.Disk = remote.DiskStats{
			ReadBytes:  rdBytes,
			WriteBytes: wrBytes,
			ReadMB:     remote.BytesToMB(rdBytes),
			WriteMB:    remote.BytesToMB(wrBytes),
		}
	} else {
		b.log.Debugw("block stats unavailable", "name", dom.Name, "device", diskDev, "error", err)
	}

	if rx, _, _, _, tx, _, _, _, err := b.lv.DomainInterfaceStats(dom, netDev); err == nil {
		stats.Network = remote.NetworkStats{
			RxBytes: rx,
			TxBytes: tx,
			RxMB:    remote.BytesToMB(rx),
			TxMB:    remote.BytesToMB(tx),
		}
	} else {
		b.log.Debugw("interface stats unavailable", "name", dom.Name, "device", netDev, "error", err)
	}

	return stats, nil
}

// statDevices picks the disk and host-side tap device to sample.
func (b *Backend) statDevices(dom libvirt.Domain) (disk, nic string) {
	disk, nic = fallbackDiskDevice, fallbackNetDevice

	xmlDesc, err := b.lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return disk, nic
	}
	desc, err := thothlibvirt.ParseDomain(xmlDesc)
	if err != nil {
		return disk, nic
	}
	if d, ok := desc.PrimaryDisk(); ok && d.Target != "" {
		disk = d.Target
	}
	for _, n := range desc.NICs {
		if n.Target != "" {
			nic = n.Target
			break
		}
	}
	return disk, nic
}

func (b *Backend) cpuPercent(name string, cpuTime uint64, vcpus uint16) float64 {
	now := b.cfg.Clock.Now()

	b.mu.Lock()
	prev, ok := b.cpus[name]
	b.cpus[name] = cpuSample{cpuTime: cpuTime, at: now}
	b.mu.Unlock()

	if !ok || cpuTime < prev.cpuTime {
		return 0
	}
	wall := now.Sub(prev.at)
	if wall <= 0 {
		return 0
	}
	if vcpus == 0 {
		vcpus = 1
	}
	pct := float64(cpuTime-prev.cpuTime) / float64(wall.Nanoseconds()) * 100 / float64(vcpus)
	return min(pct, 100)
}

func (b *Backend) forgetCPU(name string) {
	b.mu.Lock()
	delete(b.cpus, name)
	b.mu.Unlock()
}
