// Package vm is the libvirt backend of thoth.
//
// Backend implements remote.Client directly on a go-libvirt connection. It
// orchestrates the lower-level packages (storage, cloudinit, libvirt XML,
// metadata) into the operations the CLI and the REST server expose:
//   - reads: list, detail, status, stats, address, console endpoint
//   - lifecycle: start, shutdown, reboot, pause, resume, destroy, delete
//   - snapshots and clones
//   - provisioning a new VM from a remote.ProvisioningRequest
//
// Error Handling:
//
// Every method returns a *remote.Error. A libvirt "no domain" error maps to
// KindRemoteRejected wrapping remote.ErrNotFound, any other libvirt error to
// KindRemoteRejected, and a transport failure to KindRemoteUnavailable.
//
// Provisioning uses best-effort cleanup: if any step fails after storage was
// created, the partially created volumes and domain are removed. Cleanup
// errors are logged but never replace the original error.
package vm
