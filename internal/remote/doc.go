// Package remote defines the boundary between thoth's orchestration core and
// the management backend that owns the hypervisor.
//
// Client is the RPC surface the core consumes. Two implementations exist in
// this module: internal/api.Client speaks the REST protocol, and
// internal/vm.Backend talks to libvirt directly. The core (internal/provision,
// internal/telemetry, internal/focus) depends only on this package.
//
// Every error returned across the boundary should carry a Kind so callers can
// tell transient transport failures from rejections:
//
//	if remote.IsKind(err, remote.KindRemoteUnavailable) {
//	    // retry later
//	}
package remote
