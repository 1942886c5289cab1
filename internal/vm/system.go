package vm

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/remote"
)

// SystemInfo describes the hypervisor: libvirt's view (hostname, version,
// domain count) plus host facts read locally.
func (b *Backend) SystemInfo(ctx context.Context) (*remote.SystemInfo, error) {
	const op = "system info"
	if err := ctx.Err(); err != nil {
		return nil, remote.Unavailable(op, "", err)
	}

	hostname, err := b.lv.ConnectGetHostname()
	if err != nil {
		return nil, classify(op, "", err)
	}
	version, err := b.lv.ConnectGetLibVersion()
	if err != nil {
		return nil, classify(op, "", err)
	}
	domains, _, err := b.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, classify(op, "", err)
	}

	info := &remote.SystemInfo{
		Hostname:       hostname,
		LibvirtVersion: thothlibvirt.FormatVersion(version),
		Domains:        len(domains),
	}

	platform, kernel, cpus, memKB, err := b.host.Info(ctx)
	if err != nil {
		// libvirt may be remote; host facts are optional.
		b.log.Debugw("host facts unavailable", "error", err)
		return info, nil
	}
	info.Platform = platform
	info.KernelVersion = kernel
	info.CPUs = cpus
	info.MemoryKB = memKB
	return info, nil
}

// gopsutilHost reads host facts of the machine thoth runs on.
type gopsutilHost struct{}

func (gopsutilHost) Info(ctx context.Context) (platform, kernel string, cpus int, memoryKB uint64, err error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", "", 0, 0, err
	}
	cpus, err = cpu.CountsWithContext(ctx, true)
	if err != nil {
		return "", "", 0, 0, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return "", "", 0, 0, err
	}
	return hi.Platform + " " + hi.PlatformVersion, hi.KernelVersion, cpus, vm.Total / 1024, nil
}
