// Package libvirt owns the connection to the libvirt daemon and the XML
// thoth exchanges with it.
//
// Connect wraps github.com/digitalocean/go-libvirt over the local Unix
// socket. The XML side is built on libvirt.org/go/libvirtxml:
//
//   - GenerateDomainXML renders a provisioned VM from a DomainSpec
//   - ParseDomain reads disks, NICs and the VNC port back out of domain XML
//   - RewriteForClone derives a clone's XML from its source
//   - GenerateSnapshotXML and ParseSnapshotXML handle <domainsnapshot>
//
// This package defines no interfaces. Consumers (internal/vm,
// internal/storage, internal/metadata) declare the narrow set of RPCs they
// need and *libvirt.Libvirt satisfies them implicitly.
package libvirt
