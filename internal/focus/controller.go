// Package focus binds telemetry and lifecycle operations to a single
// focused resource.
//
// A Controller is either Unfocused or Focused(name). Every async result is
// tagged with the focus name and generation it was issued under and is only
// applied if that focus is still current, so a slow reply for a resource the
// user has moved away from never overwrites state for the new one.
package focus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/thoth/internal/metrics"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

// Client is the part of remote.Client the controller drives.
type Client interface {
	ListResources(ctx context.Context) ([]remote.ResourceSummary, error)
	GetResourceDetail(ctx context.Context, name string) (*remote.ResourceDetail, error)
	GetResourceStatus(ctx context.Context, name string) (*remote.ResourceStatus, error)

	Start(ctx context.Context, name string) error
	Shutdown(ctx context.Context, name string) error
	Reboot(ctx context.Context, name string) error
	Pause(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
	DeleteResource(ctx context.Context, name string, removeDisks bool) error

	ListSnapshots(ctx context.Context, name string) ([]remote.Snapshot, error)
	CreateSnapshot(ctx context.Context, name, snapshotName, description string) error
	RevertSnapshot(ctx context.Context, name, snapshotName string) error
	DeleteSnapshot(ctx context.Context, name, snapshotName string) error
	CloneResource(ctx context.Context, name, cloneName string) error

	GetConsoleEndpoint(ctx context.Context, name string) (*remote.ConsoleEndpoint, error)
}

// Config wires a Controller.
type Config struct {
	Logger *zap.SugaredLogger
	// OnSample is passed to every monitor the controller starts.
	OnSample func(resourceID string, s telemetry.Sample)
}

// Controller owns the focus state and the one telemetry monitor bound to it.
type Controller struct {
	client  Client
	monitor *telemetry.Monitor
	log     *zap.SugaredLogger
	cfg     Config

	mu        sync.Mutex
	focused   string
	gen       uint64
	handle    *telemetry.Handle
	detail    *remote.ResourceDetail
	snapshots []remote.Snapshot

	resources []remote.ResourceSummary
	listSeq   uint64
	listSeen  uint64
}

// New returns an unfocused Controller.
func New(client Client, monitor *telemetry.Monitor, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Controller{client: client, monitor: monitor, log: cfg.Logger, cfg: cfg}
}

// Focus switches to name. Any previous monitor is stopped and its series
// discarded before anything else happens. Detail and snapshots are fetched
// concurrently and are informational: their failures are logged and left
// empty. Status is fetched next and a monitor is started only for a running
// resource. Only a status failure is returned; the controller stays focused
// on name either way.
func (c *Controller) Focus(ctx context.Context, name string) error {
	c.mu.Lock()
	c.stopMonitorLocked()
	c.gen++
	gen := c.gen
	c.focused = name
	c.detail = nil
	c.snapshots = nil
	c.mu.Unlock()

	c.log.Debugw("focus changed", "resource", name, "generation", gen)

	var (
		detail             *remote.ResourceDetail
		snaps              []remote.Snapshot
		detailErr, snapErr error
		g                  errgroup.Group
	)
	g.Go(func() error {
		detail, detailErr = c.client.GetResourceDetail(ctx, name)
		return nil
	})
	g.Go(func() error {
		snaps, snapErr = c.client.ListSnapshots(ctx, name)
		return nil
	})
	_ = g.Wait()

	if detailErr != nil {
		c.log.Warnw("fetching detail failed", "resource", name, "error", detailErr)
	}
	if snapErr != nil {
		c.log.Warnw("listing snapshots failed", "resource", name, "error", snapErr)
	}

	c.mu.Lock()
	if c.isCurrentLocked(name, gen) {
		if detailErr == nil {
			c.detail = detail
		}
		if snapErr == nil {
			c.snapshots = snaps
		}
	}
	c.mu.Unlock()

	status, err := c.client.GetResourceStatus(ctx, name)
	metrics.RecordOperation("focus", err)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	if status.Running {
		c.startMonitor(ctx, name, gen)
	}
	return nil
}

// Unfocus stops the monitor and clears the focus.
func (c *Controller) Unfocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unfocusLocked()
}

// Close releases the monitor. The controller is unfocused afterwards.
func (c *Controller) Close() { c.Unfocus() }

func (c *Controller) unfocusLocked() {
	c.stopMonitorLocked()
	c.gen++
	c.focused = ""
	c.detail = nil
	c.snapshots = nil
}

func (c *Controller) stopMonitorLocked() {
	if c.handle != nil {
		c.handle.Stop()
		c.handle = nil
	}
}

func (c *Controller) isCurrentLocked(name string, gen uint64) bool {
	return c.focused == name && c.gen == gen
}

// target returns the focused resource and its generation.
func (c *Controller) target() (string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused, c.gen, c.focused != ""
}

// startMonitor starts sampling name unless focus moved on or a monitor for
// the same focus is already running. Monitors outlive the request that
// started them, so they are not bound to its cancellation.
func (c *Controller) startMonitor(ctx context.Context, name string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(name, gen) || c.monitor == nil {
		return
	}
	if c.handle != nil && !c.handle.Stopped() {
		return
	}
	var opts []telemetry.StartOption
	if c.cfg.OnSample != nil {
		opts = append(opts, telemetry.WithOnSample(c.cfg.OnSample))
	}
	c.handle = c.monitor.Start(context.WithoutCancel(ctx), name, opts...)
}

func (c *Controller) stopMonitorIfCurrent(name string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isCurrentLocked(name, gen) {
		c.stopMonitorLocked()
	}
}

// refreshDetail reloads the focused detail and reports whether the resource
// is running. Refresh failures after a successful operation are logged, not
// returned.
func (c *Controller) refreshDetail(ctx context.Context, name string, gen uint64) (running bool, ok bool) {
	d, err := c.client.GetResourceDetail(ctx, name)
	if err != nil {
		c.log.Warnw("refreshing detail failed", "resource", name, "error", err)
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(name, gen) {
		return false, false
	}
	c.detail = d
	return d.Running, true
}

func (c *Controller) refreshSnapshots(ctx context.Context, name string, gen uint64) {
	s, err := c.client.ListSnapshots(ctx, name)
	if err != nil {
		c.log.Warnw("refreshing snapshots failed", "resource", name, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isCurrentLocked(name, gen) {
		c.snapshots = s
	}
}

func (c *Controller) refreshListQuiet(ctx context.Context) {
	if _, err := c.RefreshList(ctx); err != nil {
		c.log.Warnw("refreshing resource list failed", "error", err)
	}
}

// RefreshList reloads the resource list. When refreshes overlap, only the
// most recently issued one is kept.
func (c *Controller) RefreshList(ctx context.Context) ([]remote.ResourceSummary, error) {
	c.mu.Lock()
	c.listSeq++
	seq := c.listSeq
	c.mu.Unlock()

	list, err := c.client.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.listSeen {
		c.listSeen = seq
		c.resources = list
	}
	return list, nil
}

func (c *Controller) Start(ctx context.Context) error {
	name, gen, ok := c.target()
	if !ok {
		return nil
	}
	err := c.client.Start(ctx, name)
	metrics.RecordOperation("start", err)
	if err != nil {
		return err
	}

	running, ok := c.refreshDetail(ctx, name, gen)
	c.refreshListQuiet(ctx)
	if ok && running {
		c.startMonitor(ctx, name, gen)
	}
	return nil
}

// Shutdown gracefully stops the focused resource. confirm must be set.
func (c *Controller) Shutdown(ctx context.Context, confirm bool) error {
	return c.stopResource(ctx, "shutdown", confirm, c.client.Shutdown)
}

// Destroy forcibly stops the focused resource. confirm must be set.
func (c *Controller) Destroy(ctx context.Context, confirm bool) error {
	return c.stopResource(ctx, "destroy", confirm, c.client.Destroy)
}

func (c *Controller) stopResource(ctx context.Context, op string, confirm bool, rpc func(context.Context, string) error) error {
	name, gen, ok := c.target()
	if !ok {
		return nil
	}
	if !confirm {
		return remote.Precondition(op, name, remote.ErrConfirmationRequired)
	}
	err := rpc(ctx, name)
	metrics.RecordOperation(op, err)
	if err != nil {
		return err
	}

	c.stopMonitorIfCurrent(name, gen)
	c.refreshDetail(ctx, name, gen)
	c.refreshListQuiet(ctx)
	return nil
}

func (c *Controller) Reboot(ctx context.Context) error {
	return c.inPlace(ctx, "reboot", c.client.Reboot)
}

func (c *Controller) Pause(ctx context.Context) error {
	return c.inPlace(ctx, "pause", c.client.Pause)
}

func (c *Controller) Resume(ctx context.Context) error {
	return c.inPlace(ctx, "resume", c.client.Resume)
}

// inPlace runs an operation that does not change whether the monitor is
// valid. Only the detail is refreshed.
func (c *Controller) inPlace(ctx context.Context, op string, rpc func(context.Context, string) error) error {
	name, gen, ok := c.target()
	if !ok {
		return nil
	}
	err := rpc(ctx, name)
	metrics.RecordOperation(op, err)
	if err != nil {
		return err
	}
	c.refreshDetail(ctx, name, gen)
	return nil
}

// Apply dispatches a lifecycle action to the focused resource. confirm is
// only consulted by shutdown and destroy.
func (c *Controller) Apply(ctx context.Context, action remote.Action, confirm bool) error {
	switch action {
	case remote.ActionStart:
		return c.Start(ctx)
	case remote.ActionShutdown:
		return c.Shutdown(ctx, confirm)
	case remote.ActionDestroy:
		return c.Destroy(ctx, confirm)
	case remote.ActionReboot:
		return c.Reboot(ctx)
	case remote.ActionPause:
		return c.Pause(ctx)
	case remote.ActionResume:
		return c.Resume(ctx)
	default:
		return remote.Validation(string(action), remote.ErrUnknownAction)
	}
}

// Delete removes the focused resource. confirm must be set and typedName
// must equal the focused name exactly. removeDisks is passed through.
func (c *Controller) Delete(ctx context.Context, confirm bool, typedName string, removeDisks bool) error {
	name, gen, ok := c.target()
	if !ok {
		return nil
	}
	if !confirm {
		return remote.Precondition("delete", name, remote.ErrConfirmationRequired)
	}
	if typedName != name {
		return remote.Precondition("delete", name, fmt.Errorf("%w: got %q", remote.ErrNameMismatch, typedName))
	}

	err := c.client.DeleteResource(ctx, name, removeDisks)
	metrics.RecordOperation("delete", err)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.isCurrentLocked(name, gen) {
		c.unfocusLocked()
	}
	c.mu.Unlock()
	c.log.Infow("resource deleted", "resource", name, "removeDisks", removeDisks)

	c.refreshListQuiet(ctx)
	return nil
}

// requireFocus is used by operations that have nothing sensible to do
// without a focused resource.
func (c *Controller) requireFocus(op string) (string, uint64, error) {
	name, gen, ok := c.target()
	if !ok {
		return "", 0, remote.Precondition(op, "", remote.ErrNothingFocused)
	}
	return name, gen, nil
}

// CreateSnapshot snapshots the focused resource. An empty description gets
// the default one.
func (c *Controller) CreateSnapshot(ctx context.Context, snapshotName, description string) error {
	name, gen, err := c.requireFocus("create snapshot")
	if err != nil {
		return err
	}
	if description == "" {
		description = remote.DefaultSnapshotDescription
	}
	err = c.client.CreateSnapshot(ctx, name, snapshotName, description)
	metrics.RecordOperation("create_snapshot", err)
	if err != nil {
		return err
	}
	c.refreshSnapshots(ctx, name, gen)
	return nil
}

func (c *Controller) RevertSnapshot(ctx context.Context, snapshotName string) error {
	name, gen, err := c.requireFocus("revert snapshot")
	if err != nil {
		return err
	}
	err = c.client.RevertSnapshot(ctx, name, snapshotName)
	metrics.RecordOperation("revert_snapshot", err)
	if err != nil {
		return err
	}
	c.refreshSnapshots(ctx, name, gen)
	return nil
}

func (c *Controller) DeleteSnapshot(ctx context.Context, snapshotName string) error {
	name, gen, err := c.requireFocus("delete snapshot")
	if err != nil {
		return err
	}
	err = c.client.DeleteSnapshot(ctx, name, snapshotName)
	metrics.RecordOperation("delete_snapshot", err)
	if err != nil {
		return err
	}
	c.refreshSnapshots(ctx, name, gen)
	return nil
}

// Clone copies the focused resource to cloneName and refreshes the list.
func (c *Controller) Clone(ctx context.Context, cloneName string) error {
	name, _, err := c.requireFocus("clone")
	if err != nil {
		return err
	}
	err = c.client.CloneResource(ctx, name, cloneName)
	metrics.RecordOperation("clone", err)
	if err != nil {
		return err
	}
	c.refreshListQuiet(ctx)
	return nil
}

// Console returns the VNC endpoint of the focused resource.
func (c *Controller) Console(ctx context.Context) (*remote.ConsoleEndpoint, error) {
	name, _, err := c.requireFocus("console")
	if err != nil {
		return nil, err
	}
	return c.client.GetConsoleEndpoint(ctx, name)
}

// Focused returns the focused resource name.
func (c *Controller) Focused() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused, c.focused != ""
}

// Detail returns the last detail fetched for the focused resource.
func (c *Controller) Detail() *remote.ResourceDetail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

func (c *Controller) Snapshots() []remote.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Snapshot(nil), c.snapshots...)
}

func (c *Controller) Resources() []remote.ResourceSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.ResourceSummary(nil), c.resources...)
}

// Monitor returns the active telemetry handle, if one is running.
func (c *Controller) Monitor() (*telemetry.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, c.handle != nil
}
