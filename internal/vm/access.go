package vm

import (
	"context"
	"errors"
	"os"

	"github.com/digitalocean/go-libvirt"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/remote"
)

// virDomainIPAddrType values.
const (
	ipAddrTypeIPv4 = 0
	ipAddrTypeIPv6 = 1
)

var errNoConsole = errors.New("no VNC port assigned, VM may not be running")

// GetResourceAddress reports the addresses of a domain. DHCP leases of the
// libvirt network are consulted first, then the guest agent. An error
// wrapping remote.ErrAddressNotAvailable means no address is known yet.
func (b *Backend) GetResourceAddress(ctx context.Context, name string) (*remote.Address, error) {
	const op = "get address"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}

	sources := []libvirt.DomainInterfaceAddressesSource{
		libvirt.DomainInterfaceAddressesSrcLease,
		libvirt.DomainInterfaceAddressesSrcAgent,
	}
	for _, src := range sources {
		ifaces, err := b.lv.DomainInterfaceAddresses(dom, uint32(src), 0)
		if err != nil {
			// The agent source fails until qemu-guest-agent is up.
			b.log.Debugw("address source failed", "name", name, "source", src, "error", err)
			continue
		}
		converted := convertInterfaces(ifaces)
		if primary := remote.PrimaryIPv4(converted); primary != "" {
			return &remote.Address{Primary: primary, Interfaces: converted}, nil
		}
	}
	return nil, remote.Rejected(op, name, remote.ErrAddressNotAvailable)
}

func convertInterfaces(ifaces []libvirt.DomainInterface) []remote.Interface {
	out := make([]remote.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		ri := remote.Interface{Name: iface.Name}
		if len(iface.Hwaddr) > 0 {
			ri.HWAddr = iface.Hwaddr[0]
		}
		for _, a := range iface.Addrs {
			ri.Addrs = append(ri.Addrs, remote.IPAddress{
				Type:   addrType(a.Type),
				Addr:   a.Addr,
				Prefix: a.Prefix,
			})
		}
		out = append(out, ri)
	}
	return out
}

func addrType(t int32) string {
	switch t {
	case ipAddrTypeIPv4:
		return "ipv4"
	case ipAddrTypeIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// GetConsoleEndpoint locates the VNC console of a running domain.
func (b *Backend) GetConsoleEndpoint(ctx context.Context, name string) (*remote.ConsoleEndpoint, error) {
	const op = "get console"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}

	xmlDesc, err := b.lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return nil, classify(op, name, err)
	}
	desc, err := thothlibvirt.ParseDomain(xmlDesc)
	if err != nil {
		return nil, remote.Rejected(op, name, err)
	}
	if desc.VNCPort <= 0 {
		return nil, remote.Rejected(op, name, errNoConsole)
	}
	return remote.NewConsoleEndpoint(b.consoleHost(desc.VNCListen), desc.VNCPort), nil
}

func (b *Backend) consoleHost(listen string) string {
	if b.cfg.ConsoleHost != "" {
		return b.cfg.ConsoleHost
	}
	if listen != "" && listen != "0.0.0.0" && listen != "::" {
		return listen
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}
