package remote

import "context"

// Client is the RPC surface of the management backend.
//
// Implementations return errors built with this package's constructors so
// that callers can branch on Kind. GetResourceStats returns (nil, nil) when
// the backend has no statistics for the resource (for example, it is not
// running). GetResourceAddress returns an error wrapping
// ErrAddressNotAvailable while no address is assigned yet.
type Client interface {
	ListResources(ctx context.Context) ([]ResourceSummary, error)
	GetResourceDetail(ctx context.Context, name string) (*ResourceDetail, error)
	GetResourceStatus(ctx context.Context, name string) (*ResourceStatus, error)
	GetResourceStats(ctx context.Context, name string) (*ResourceStats, error)

	Start(ctx context.Context, name string) error
	Shutdown(ctx context.Context, name string) error
	Reboot(ctx context.Context, name string) error
	Pause(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
	DeleteResource(ctx context.Context, name string, removeDisks bool) error

	ListSnapshots(ctx context.Context, name string) ([]Snapshot, error)
	CreateSnapshot(ctx context.Context, name, snapshotName, description string) error
	RevertSnapshot(ctx context.Context, name, snapshotName string) error
	DeleteSnapshot(ctx context.Context, name, snapshotName string) error
	CloneResource(ctx context.Context, name, cloneName string) error

	GetConsoleEndpoint(ctx context.Context, name string) (*ConsoleEndpoint, error)
	CreateProvisioningRequest(ctx context.Context, req ProvisioningRequest) (string, error)
	GetResourceAddress(ctx context.Context, name string) (*Address, error)
}

// SystemInfoer is implemented by backends that can describe their host.
type SystemInfoer interface {
	SystemInfo(ctx context.Context) (*SystemInfo, error)
}

// Action names a simple lifecycle operation.
type Action string

const (
	ActionStart    Action = "start"
	ActionShutdown Action = "shutdown"
	ActionReboot   Action = "reboot"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionDestroy  Action = "destroy"
)

// Actions lists every simple lifecycle operation.
var Actions = []Action{ActionStart, ActionShutdown, ActionReboot, ActionPause, ActionResume, ActionDestroy}

// Do dispatches a lifecycle Action to the matching Client method.
func Do(ctx context.Context, c Client, action Action, name string) error {
	switch action {
	case ActionStart:
		return c.Start(ctx, name)
	case ActionShutdown:
		return c.Shutdown(ctx, name)
	case ActionReboot:
		return c.Reboot(ctx, name)
	case ActionPause:
		return c.Pause(ctx, name)
	case ActionResume:
		return c.Resume(ctx, name)
	case ActionDestroy:
		return c.Destroy(ctx, name)
	default:
		return Validation(string(action), ErrUnknownAction)
	}
}
