// Package storage manages the libvirt storage pools and volumes behind
// thoth's VMs.
//
// Two directory pools are used:
//   - thoth-images: base OS images, named "<image>.qcow2"
//   - thoth-vms: per-VM volumes (boot overlays, cloud-init seed ISOs, clones)
//
// Boot volumes are qcow2 overlays whose backing store is a base image, so
// provisioning never copies the image. Clones are full copies made by
// libvirt (StorageVolCreateXMLFrom).
//
// The LibvirtClient interface lists the RPCs this package uses;
// *libvirt.Libvirt from github.com/digitalocean/go-libvirt satisfies it.
package storage
