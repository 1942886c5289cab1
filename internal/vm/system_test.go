package vm

import (
	"context"
	"errors"
	"testing"
)

func TestSystemInfo(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)
	lv.addDomain("db01", -1, domainStateShutoff, stoppedXML)

	info, err := b.SystemInfo(context.Background())
	if err != nil {
		t.Fatalf("SystemInfo failed: %v", err)
	}
	if info.Hostname != "hv01" {
		t.Errorf("expected hostname hv01, got %s", info.Hostname)
	}
	if info.LibvirtVersion != "10.0.0" {
		t.Errorf("expected libvirt version 10.0.0, got %s", info.LibvirtVersion)
	}
	if info.Domains != 2 {
		t.Errorf("expected 2 domains, got %d", info.Domains)
	}
	if info.CPUs != 16 || info.MemoryKB != 65536000 || info.Platform != "fedora 42" {
		t.Errorf("unexpected host facts: %+v", info)
	}
}

func TestSystemInfo_HostFactsOptional(t *testing.T) {
	b, _, _, _ := newTestBackend(t)
	b.host = mockHost{err: errors.New("not supported")}

	info, err := b.SystemInfo(context.Background())
	if err != nil {
		t.Fatalf("expected host fact errors to be tolerated, got %v", err)
	}
	if info.Hostname != "hv01" || info.CPUs != 0 {
		t.Errorf("unexpected info: %+v", info)
	}
}
