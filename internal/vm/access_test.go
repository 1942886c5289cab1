package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thoth/internal/remote"
)

func TestGetResourceAddress_AgentFallback(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)
	lv.domainInterfaceAddressesFunc = func(_ libvirt.Domain, source uint32) ([]libvirt.DomainInterface, error) {
		if source == uint32(libvirt.DomainInterfaceAddressesSrcLease) {
			return nil, nil
		}
		return []libvirt.DomainInterface{
			{Name: "lo", Hwaddr: libvirt.OptString{"00:00:00:00:00:00"}, Addrs: []libvirt.DomainIPAddr{{Type: ipAddrTypeIPv4, Addr: "127.0.0.1", Prefix: 8}}},
		}, nil
	}

	addr, err := b.GetResourceAddress(context.Background(), "web01")
	if err != nil {
		t.Fatalf("GetResourceAddress failed: %v", err)
	}
	if addr.Primary != "127.0.0.1" {
		t.Errorf("expected agent address, got %q", addr.Primary)
	}
	if len(lv.addressSourceCalls) != 2 {
		t.Errorf("expected lease then agent lookups, got %v", lv.addressSourceCalls)
	}
}

func TestGetResourceAddress_Lease(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)
	lv.domainInterfaceAddressesFunc = func(libvirt.Domain, uint32) ([]libvirt.DomainInterface, error) {
		return []libvirt.DomainInterface{{
			Name:   "vnet3",
			Hwaddr: libvirt.OptString{"52:54:00:aa:bb:cc"},
			Addrs: []libvirt.DomainIPAddr{
				{Type: ipAddrTypeIPv6, Addr: "fe80::5054:ff:feaa:bbcc", Prefix: 64},
				{Type: ipAddrTypeIPv4, Addr: "192.168.122.45", Prefix: 24},
			},
		}}, nil
	}

	addr, err := b.GetResourceAddress(context.Background(), "web01")
	if err != nil {
		t.Fatalf("GetResourceAddress failed: %v", err)
	}
	if addr.Primary != "192.168.122.45" {
		t.Errorf("expected first IPv4 address, got %q", addr.Primary)
	}
	if len(addr.Interfaces) != 1 || addr.Interfaces[0].HWAddr != "52:54:00:aa:bb:cc" {
		t.Fatalf("unexpected interfaces: %+v", addr.Interfaces)
	}
	if got := addr.Interfaces[0].Addrs[0].Type; got != "ipv6" {
		t.Errorf("expected ipv6 type, got %s", got)
	}
	if len(lv.addressSourceCalls) != 1 {
		t.Errorf("expected the agent not to be asked, got %v", lv.addressSourceCalls)
	}
}

func TestGetResourceAddress_NotYet(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)
	lv.domainInterfaceAddressesFunc = func(_ libvirt.Domain, source uint32) ([]libvirt.DomainInterface, error) {
		if source == uint32(libvirt.DomainInterfaceAddressesSrcAgent) {
			return nil, libvirt.Error{Code: uint32(libvirt.ErrOperationInvalid), Message: "guest agent is not responding"}
		}
		return nil, nil
	}

	_, err := b.GetResourceAddress(context.Background(), "web01")
	if !errors.Is(err, remote.ErrAddressNotAvailable) {
		t.Errorf("expected address-not-available error, got %v", err)
	}
	if !remote.IsKind(err, remote.KindRemoteRejected) {
		t.Errorf("expected RemoteRejected, got %v", remote.KindOf(err))
	}
}

func TestGetConsoleEndpoint(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("web01", 7, domainStateRunning, web01XML)

	ep, err := b.GetConsoleEndpoint(context.Background(), "web01")
	if err != nil {
		t.Fatalf("GetConsoleEndpoint failed: %v", err)
	}
	if ep.Host != "hv01.example.com" || ep.Port != 5903 || ep.Display != ":3" {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
}

func TestGetConsoleEndpoint_NoPort(t *testing.T) {
	b, lv, _, _ := newTestBackend(t)
	lv.addDomain("db01", -1, domainStateShutoff, stoppedXML)

	_, err := b.GetConsoleEndpoint(context.Background(), "db01")
	if !remote.IsKind(err, remote.KindRemoteRejected) {
		t.Errorf("expected RemoteRejected for autoport -1, got %v", err)
	}
}

func TestConsoleHost(t *testing.T) {
	b, _, _, _ := newTestBackend(t)
	b.cfg.ConsoleHost = ""

	if got := b.consoleHost("10.1.2.3"); got != "10.1.2.3" {
		t.Errorf("expected explicit listen address, got %s", got)
	}
	if got := b.consoleHost("0.0.0.0"); got == "0.0.0.0" || got == "" {
		t.Errorf("expected a reachable host name, got %q", got)
	}
}
