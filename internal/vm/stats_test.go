package vm

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/digitalocean/go-libvirt"
)

func TestGetResourceStats_CPUDelta(t *testing.T) {
	b, lv, _, clock := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)

	var cpuTime uint64 = 5e9
	lv.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return domainStateRunning, 4194304, 1048576, 2, cpuTime, nil
	}

	first, err := b.GetResourceStats(context.Background(), "web01")
	if err != nil {
		t.Fatalf("GetResourceStats failed: %v", err)
	}
	if first.CPUPercent != 0 {
		t.Errorf("expected first sample to report 0%% CPU, got %v", first.CPUPercent)
	}

	// One second of CPU time over two seconds on two vCPUs.
	clock.Advance(2 * time.Second)
	cpuTime += 1e9

	second, err := b.GetResourceStats(context.Background(), "web01")
	if err != nil {
		t.Fatalf("GetResourceStats failed: %v", err)
	}
	if math.Abs(second.CPUPercent-25) > 0.001 {
		t.Errorf("expected 25%% CPU, got %v", second.CPUPercent)
	}
	if second.Memory.UsedKB != 1048576 || second.Memory.MaxKB != 4194304 || second.Memory.Percent != 25 {
		t.Errorf("unexpected memory stats: %+v", second.Memory)
	}
	if second.Disk.ReadMB != 2 || second.Disk.WriteMB != 1 {
		t.Errorf("unexpected disk stats: %+v", second.Disk)
	}
	if second.Network.RxMB != 3 || second.Network.TxMB != 1 {
		t.Errorf("unexpected network stats: %+v", second.Network)
	}
}

func TestGetResourceStats_DevicesFromXML(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)

	if _, err := b.GetResourceStats(context.Background(), "web01"); err != nil {
		t.Fatalf("GetResourceStats failed: %v", err)
	}
	if len(lv.blockStatsCalls) != 1 || lv.blockStatsCalls[0] != "vda" {
		t.Errorf("expected block stats for vda, got %v", lv.blockStatsCalls)
	}
	if len(lv.interfaceStatsCalls) != 1 || lv.interfaceStatsCalls[0] != "vnet3" {
		t.Errorf("expected interface stats for vnet3, got %v", lv.interfaceStatsCalls)
	}
}

func TestGetResourceStats_FallbackDevices(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("db01", 3, domainStateRunning, stoppedXML)

	if _, err := b.GetResourceStats(context.Background(), "db01"); err != nil {
		t.Fatalf("GetResourceStats failed: %v", err)
	}
	if lv.blockStatsCalls[0] != fallbackDiskDevice || lv.interfaceStatsCalls[0] != fallbackNetDevice {
		t.Errorf("expected fallback devices, got %v and %v", lv.blockStatsCalls, lv.interfaceStatsCalls)
	}
}

func TestGetResourceStats_DeviceErrorsTolerated(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)
	lv.domainInterfaceStatsFunc = func(libvirt.Domain, string) (int64, int64, int64, int64, int64, int64, int64, int64, error) {
		return 0, 0, 0, 0, 0, 0, 0, 0, errors.New("invalid path")
	}

	stats, err := b.GetResourceStats(context.Background(), "web01")
	if err != nil {
		t.Fatalf("expected device errors to be tolerated, got %v", err)
	}
	if stats.Network.RxBytes != 0 || stats.Disk.ReadBytes == 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGetResourceStats_NotRunning(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("db01", -1, domainStateShutoff, stoppedXML)

	stats, err := b.GetResourceStats(context.Background(), "db01")
	if err != nil {
		t.Fatalf("GetResourceStats failed: %v", err)
	}
	if stats != nil {
		t.Errorf("expected nil stats for a stopped resource, got %+v", stats)
	}
}

func TestCPUPercent_CounterReset(t *testing.T) {
	b, _, _, clock := newTestBackend(t)

	b.cpuPercent("web01", 10e9, 1)
	clock.Advance(time.Second)
	if got := b.cpuPercent("web01", 1e9, 1); got != 0 {
		t.Errorf("expected 0%% after a counter reset, got %v", got)
	}
	clock.Advance(time.Second)
	if got := b.cpuPercent("web01", 3e9, 1); got != 100 {
		t.Errorf("expected percent capped at 100, got %v", got)
	}
}
