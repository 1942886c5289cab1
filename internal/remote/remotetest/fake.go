// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jbweber/thoth/internal/remote"
)

// VM is one fake resource.
type VM struct {
	Name      string
	State     remote.State
	Stats     *remote.ResourceStats
	Address   *remote.Address
	Snapshots []remote.Snapshot
	Disks     bool
}

// Backend is an in-memory remote.Client. Errs injects a failure per
// operation name (the Op used in remote errors, for example "start").
type Backend struct {
	mu    sync.Mutex
	vms   map[string]*VM
	calls []string

	Errs map[string]error
	Info remote.SystemInfo
	// LastRemoveDisks records the flag of the last DeleteResource call.
	LastRemoveDisks bool
	// Requests records every provisioning request received.
	Requests []remote.ProvisioningRequest
}

var (
	_ remote.Client       = (*Backend)(nil)
	_ remote.SystemInfoer = (*Backend)(nil)
)

// New returns a Backend holding vms.
func New(vms ...VM) *Backend {
	b := &Backend{vms: map[string]*VM{}, Errs: map[string]error{}}
	for i := range vms {
		vm := vms[i]
		b.vms[vm.Name] = &vm
	}
	return b
}

// Calls returns "op name" for every call, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Get returns a copy of a VM.
func (b *Backend) Get(name string) (VM, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, ok := b.vms[name]
	if !ok {
		return VM{}, false
	}
	return *vm, true
}

// enter records the call and returns the VM, the injected error, or
// ErrNotFound. It must be called with b.mu held.
func (b *Backend) enter(op, name string) (*VM, error) {
	b.calls = append(b.calls, op+" "+name)
	if err := b.Errs[op]; err != nil {
		return nil, err
	}
	vm, ok := b.vms[name]
	if !ok {
		return nil, remote.Rejected(op, name, remote.ErrNotFound)
	}
	return vm, nil
}

func (b *Backend) ListResources(context.Context) ([]remote.ResourceSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "list")
	if err := b.Errs["list"]; err != nil {
		return nil, err
	}
	out := make([]remote.ResourceSummary, 0, len(b.vms))
	for _, vm := range b.vms {
		out = append(out, remote.ResourceSummary{
			Name:    vm.Name,
			State:   vm.State,
			Running: vm.State == remote.StateRunning,
			Stats:   vm.Stats,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i := range out {
		out[i].ID = i + 1
	}
	return out, nil
}

func (b *Backend) GetResourceDetail(_ context.Context, name string) (*remote.ResourceDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("detail", name)
	if err != nil {
		return nil, err
	}
	return &remote.ResourceDetail{
		Name:    vm.Name,
		State:   vm.State,
		Running: vm.State == remote.StateRunning,
		Info:    "Name: " + vm.Name + "\nState: " + string(vm.State),
		XML:     "<domain type='kvm'><name>" + vm.Name + "</name></domain>",
	}, nil
}

func (b *Backend) GetResourceStatus(_ context.Context, name string) (*remote.ResourceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("status", name)
	if err != nil {
		return nil, err
	}
	return &remote.ResourceStatus{State: vm.State, Running: vm.State == remote.StateRunning}, nil
}

func (b *Backend) GetResourceStats(_ context.Context, name string) (*remote.ResourceStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("stats", name)
	if err != nil {
		return nil, err
	}
	if vm.State != remote.StateRunning {
		return nil, nil
	}
	return vm.Stats, nil
}

func (b *Backend) transition(op, name string, to remote.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter(op, name)
	if err != nil {
		return err
	}
	vm.State = to
	return nil
}

func (b *Backend) Start(_ context.Context, name string) error {
	return b.transition("start", name, remote.StateRunning)
}

func (b *Backend) Shutdown(_ context.Context, name string) error {
	return b.transition("shutdown", name, remote.StateShutOff)
}

func (b *Backend) Reboot(_ context.Context, name string) error {
	return b.transition("reboot", name, remote.StateRunning)
}

func (b *Backend) Pause(_ context.Context, name string) error {
	return b.transition("pause", name, remote.StatePaused)
}

func (b *Backend) Resume(_ context.Context, name string) error {
	return b.transition("resume", name, remote.StateRunning)
}

func (b *Backend) Destroy(_ context.Context, name string) error {
	return b.transition("destroy", name, remote.StateShutOff)
}

func (b *Backend) DeleteResource(_ context.Context, name string, removeDisks bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.enter("delete", name); err != nil {
		return err
	}
	b.LastRemoveDisks = removeDisks
	delete(b.vms, name)
	return nil
}

func (b *Backend) ListSnapshots(_ context.Context, name string) ([]remote.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("list snapshots", name)
	if err != nil {
		return nil, err
	}
	return append([]remote.Snapshot(nil), vm.Snapshots...), nil
}

func (b *Backend) CreateSnapshot(_ context.Context, name, snapshotName, description string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("create snapshot", name)
	if err != nil {
		return err
	}
	for _, s := range vm.Snapshots {
		if s.Name == snapshotName {
			return remote.Rejected("create snapshot", name, remote.ErrAlreadyExists)
		}
	}
	vm.Snapshots = append(vm.Snapshots, remote.Snapshot{
		Name:         snapshotName,
		CreationTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Description:  description,
		State:        string(vm.State),
	})
	return nil
}

func (b *Backend) findSnapshot(op, name, snapshotName string) (*VM, int, error) {
	vm, err := b.enter(op, name)
	if err != nil {
		return nil, 0, err
	}
	for i, s := range vm.Snapshots {
		if s.Name == snapshotName {
			return vm, i, nil
		}
	}
	return nil, 0, remote.Rejected(op, snapshotName, remote.ErrNotFound)
}

func (b *Backend) RevertSnapshot(_ context.Context, name, snapshotName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _, err := b.findSnapshot("revert snapshot", name, snapshotName)
	return err
}

func (b *Backend) DeleteSnapshot(_ context.Context, name, snapshotName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, i, err := b.findSnapshot("delete snapshot", name, snapshotName)
	if err != nil {
		return err
	}
	vm.Snapshots = append(vm.Snapshots[:i], vm.Snapshots[i+1:]...)
	return nil
}

func (b *Backend) CloneResource(_ context.Context, name, cloneName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("clone", name)
	if err != nil {
		return err
	}
	if _, exists := b.vms[cloneName]; exists {
		return remote.Rejected("clone", cloneName, remote.ErrAlreadyExists)
	}
	b.vms[cloneName] = &VM{Name: cloneName, State: remote.StateShutOff, Disks: vm.Disks}
	return nil
}

func (b *Backend) GetConsoleEndpoint(_ context.Context, name string) (*remote.ConsoleEndpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.enter("console", name); err != nil {
		return nil, err
	}
	return remote.NewConsoleEndpoint("localhost", 5901), nil
}

func (b *Backend) CreateProvisioningRequest(_ context.Context, req remote.ProvisioningRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "deploy "+req.Hostname)
	if err := b.Errs["deploy"]; err != nil {
		return "", err
	}
	if _, exists := b.vms[req.Hostname]; exists {
		return "", remote.Rejected("deploy", req.Hostname, remote.ErrAlreadyExists)
	}
	b.Requests = append(b.Requests, req)
	b.vms[req.Hostname] = &VM{Name: req.Hostname, State: remote.StateShutOff, Disks: true}
	return req.Hostname, nil
}

func (b *Backend) GetResourceAddress(_ context.Context, name string) (*remote.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, err := b.enter("address", name)
	if err != nil {
		return nil, err
	}
	if vm.Address == nil {
		return nil, remote.Rejected("address", name, remote.ErrAddressNotAvailable)
	}
	addr := *vm.Address
	return &addr, nil
}

func (b *Backend) SystemInfo(context.Context) (*remote.SystemInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "system")
	info := b.Info
	info.Domains = len(b.vms)
	return &info, nil
}
