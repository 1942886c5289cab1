// Package provision drives a provisioning request through its phases:
// GenerateConfig, Create, Start, AwaitInit and ResolveAddress.
//
// Phases run strictly in order on a per-run state machine. A failure in
// GenerateConfig, Create or Start ends the run as Failed and no later phase
// runs. A ResolveAddress timeout is not a failure: the run succeeds with an
// unknown address, since the VM exists and is running.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/metrics"
	"github.com/jbweber/thoth/internal/poll"
	"github.com/jbweber/thoth/internal/remote"
)

const (
	DefaultAwaitInit       = 60 * time.Second
	DefaultAddressInterval = 2 * time.Second
	DefaultAddressTimeout  = 30 * time.Second
	DefaultGracePeriod     = 3 * time.Second
	DefaultRetention       = 15 * time.Minute
)

// Client is the part of remote.Client a run needs.
type Client interface {
	CreateProvisioningRequest(ctx context.Context, req remote.ProvisioningRequest) (string, error)
	Start(ctx context.Context, name string) error
	GetResourceAddress(ctx context.Context, name string) (*remote.Address, error)
}

// Config tunes an Orchestrator. Zero values take the defaults above.
type Config struct {
	// AwaitInit is the flat settle delay after Start.
	AwaitInit time.Duration
	// FlavorAwaitInit overrides AwaitInit per flavor name.
	FlavorAwaitInit map[string]time.Duration
	AddressInterval time.Duration
	AddressTimeout  time.Duration
	// GracePeriod is how long a finished run stays active before the
	// orchestrator accepts a new submission.
	GracePeriod time.Duration
	// Retention is how long finished runs remain retrievable by ID.
	Retention time.Duration
	// DefaultImage fills requests that name no image.
	DefaultImage string
	Logger       *zap.SugaredLogger
	Clock        poll.Clock
}

// registry retains submitted runs of every orchestrator in the process so
// they can be looked up by ID after they finish. Entries expire after the
// submitting orchestrator's Retention.
var registry = expiremap.NewEx[string, *Run](time.Minute, DefaultRetention)

// Orchestrator runs at most one provisioning run at a time.
type Orchestrator struct {
	id     string
	client Client
	cfg    Config
	log    *zap.SugaredLogger

	mu     sync.Mutex
	active *Run
	// ended is when the active run reached its terminal state, on cfg.Clock.
	ended time.Time
}

// New returns an Orchestrator issuing RPCs through client.
func New(client Client, cfg Config) *Orchestrator {
	if cfg.AwaitInit <= 0 {
		cfg.AwaitInit = DefaultAwaitInit
	}
	if cfg.AddressInterval <= 0 {
		cfg.AddressInterval = DefaultAddressInterval
	}
	if cfg.AddressTimeout <= 0 {
		cfg.AddressTimeout = DefaultAddressTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = poll.RealClock
	}

	return &Orchestrator{
		id:     uuid.NewString(),
		client: client,
		cfg:    cfg,
		log:    cfg.Logger,
	}
}

// Submit starts a run for req and returns its handle immediately. The run
// uses ctx for every RPC and wait; cancelling ctx fails the run in whatever
// phase it is in. Submit refuses while another run is active.
func (o *Orchestrator) Submit(ctx context.Context, req remote.ProvisioningRequest) (*Run, error) {
	o.mu.Lock()
	if active := o.activeLocked(); active != nil {
		o.mu.Unlock()
		return nil, remote.Precondition("submit", active.ID, remote.ErrRunActive)
	}
	run := newRun(uuid.NewString(), req, o.cfg.Clock.Now)
	run.owner = o.id
	o.active = run
	o.ended = time.Time{}
	o.mu.Unlock()

	registry.SetEx(run.ID, run, o.cfg.Retention)
	o.log.Infow("provisioning run submitted", "run", run.ID, "hostname", req.Hostname)

	go o.execute(ctx, run)
	return run, nil
}

// Provision submits req and waits for the terminal outcome.
func (o *Orchestrator) Provision(ctx context.Context, req remote.ProvisioningRequest) (Outcome, error) {
	run, err := o.Submit(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	return run.Wait(ctx)
}

// Active returns the run currently occupying the orchestrator, which may
// already be terminal while its grace period runs.
func (o *Orchestrator) Active() (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	active := o.activeLocked()
	return active, active != nil
}

// activeLocked releases a terminal run whose grace period has passed on
// cfg.Clock and returns what remains active.
func (o *Orchestrator) activeLocked() *Run {
	if o.active == nil || o.ended.IsZero() || !o.active.Phase().Terminal() {
		return o.active
	}
	if o.cfg.Clock.Now().Sub(o.ended) >= o.cfg.GracePeriod {
		o.log.Debugw("provisioning run reset after grace period", "run", o.active.ID)
		o.active = nil
		o.ended = time.Time{}
	}
	return o.active
}

// Dismiss releases a terminal run before its grace period ends. It is how a
// caller signals it consumed the result.
func (o *Orchestrator) Dismiss(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	active := o.activeLocked()
	if active == nil || active.ID != runID || !active.Phase().Terminal() {
		return false
	}
	o.active = nil
	o.ended = time.Time{}
	return true
}

// Lookup finds a run this orchestrator submitted within the retention
// window.
func (o *Orchestrator) Lookup(runID string) (*Run, bool) {
	r, ok := registry.Load(runID)
	if !ok || (*r).owner != o.id {
		return nil, false
	}
	return *r, true
}

// Runs lists this orchestrator's retained runs, oldest first.
func (o *Orchestrator) Runs() []*Run {
	var out []*Run
	registry.Range(func(_ string, r *Run) bool {
		if r.owner == o.id {
			out = append(out, r)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Submitted.Before(out[j].Submitted) })
	return out
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	log := o.log.With("run", run.ID)
	out := o.runPhases(ctx, run, log)

	o.mu.Lock()
	if o.active == run {
		o.ended = o.cfg.Clock.Now()
	}
	o.mu.Unlock()

	if err := run.finish(ctx, out); err != nil {
		log.Errorw("recording terminal state failed", "error", err)
	}
	if final, ok := run.Outcome(); ok {
		out = final
	}
	o.recordOutcome(out, log)
}

func (o *Orchestrator) runPhases(ctx context.Context, run *Run, log *zap.SugaredLogger) Outcome {
	fail := func(p Phase, err error) Outcome {
		log.Errorw("provisioning phase failed", "phase", p, "error", err)
		return Outcome{FailedPhase: p, Reason: err}
	}

	// Phase 1: validate and normalize locally.
	if err := o.enter(ctx, run, PhaseGenerateConfig, log); err != nil {
		return fail(PhaseGenerateConfig, err)
	}
	req := run.Request().Normalized()
	if req.Image == "" {
		req.Image = o.cfg.DefaultImage
	}
	if err := req.Validate(); err != nil {
		return fail(PhaseGenerateConfig, err)
	}
	run.setRequest(req)
	run.updateReconcile(func(r *Reconcile) { r.ResourceName = req.Hostname })

	// Phase 2: create. From here on the resource may exist remotely.
	if err := o.enter(ctx, run, PhaseCreate, log); err != nil {
		return fail(PhaseCreate, err)
	}
	run.updateReconcile(func(r *Reconcile) { r.CreateIssued = true })
	name, err := o.client.CreateProvisioningRequest(ctx, req)
	if err != nil {
		return fail(PhaseCreate, err)
	}
	if name == "" {
		name = req.Hostname
	}
	run.updateReconcile(func(r *Reconcile) { r.ResourceName = name })

	// Phase 3: power on.
	if err := o.enter(ctx, run, PhaseStart, log); err != nil {
		return fail(PhaseStart, err)
	}
	if err := o.client.Start(ctx, name); err != nil {
		return fail(PhaseStart, err)
	}
	run.updateReconcile(func(r *Reconcile) { r.Started = true })

	// Phase 4: flat settle delay for first-boot initialization.
	if err := o.enter(ctx, run, PhaseAwaitInit, log); err != nil {
		return fail(PhaseAwaitInit, err)
	}
	wait := o.awaitInitFor(req.Flavor)
	log.Infow("waiting for guest initialization", "resource", name, "wait", wait)
	if err := poll.Sleep(ctx, o.cfg.Clock, wait); err != nil {
		return fail(PhaseAwaitInit, err)
	}

	// Phase 5: bounded address polling.
	if err := o.enter(ctx, run, PhaseResolveAddress, log); err != nil {
		return fail(PhaseResolveAddress, err)
	}
	res, err := poll.Poll(ctx, func(ctx context.Context) (*remote.Address, bool, error) {
		addr, err := o.client.GetResourceAddress(ctx, name)
		if err != nil {
			return nil, false, err
		}
		return addr, addr != nil && addr.Primary != "", nil
	}, o.cfg.AddressInterval, o.cfg.AddressTimeout,
		poll.WithClock(o.cfg.Clock),
		poll.WithOnAttempt(func(attempt int, found bool, err error) {
			metrics.RecordAddressAttempt()
			if !found {
				log.Debugw("address not available yet", "resource", name, "attempt", attempt, "error", err)
			}
		}),
	)
	if err != nil {
		return fail(PhaseResolveAddress, err)
	}

	out := Outcome{Succeeded: true, PollAttempts: res.Attempts}
	if res.Found {
		out.Address = res.Value.Primary
		out.Interfaces = res.Value.Interfaces
		return out
	}

	reason := res.LastErr
	if reason == nil {
		reason = remote.ErrAddressNotAvailable
	}
	out.AddressErr = remote.Timeout("resolve address", name,
		fmt.Errorf("no address after %s (%d attempts): %w", o.cfg.AddressTimeout, res.Attempts, reason))
	log.Warnw("address unknown, VM is running", "resource", name, "error", out.AddressErr)
	return out
}

// enter transitions the run into p and records how long the previous phase took.
func (o *Orchestrator) enter(ctx context.Context, run *Run, p Phase, log *zap.SugaredLogger) error {
	if h := run.History(); len(h) > 0 {
		last := h[len(h)-1]
		metrics.ObservePhase(string(last.Phase), o.cfg.Clock.Now().Sub(last.Started))
	}
	if err := run.advance(ctx, p); err != nil {
		return fmt.Errorf("entering %s: %w", p, err)
	}
	log.Infow("provisioning phase", "phase", p)
	return nil
}

func (o *Orchestrator) awaitInitFor(flavor string) time.Duration {
	if d, ok := o.cfg.FlavorAwaitInit[flavor]; ok && d > 0 {
		return d
	}
	return o.cfg.AwaitInit
}

func (o *Orchestrator) recordOutcome(out Outcome, log *zap.SugaredLogger) {
	switch {
	case out.AddressKnown():
		metrics.RecordRun("succeeded")
		log.Infow("provisioning succeeded", "resource", out.Reconcile.ResourceName, "address", out.Address)
	case out.Succeeded:
		metrics.RecordRun("succeeded_no_address")
		log.Infow("provisioning succeeded without address", "resource", out.Reconcile.ResourceName)
	default:
		metrics.RecordRun("failed")
		kind := remote.KindOf(out.Reason)
		if errors.Is(out.Reason, context.Canceled) || errors.Is(out.Reason, context.DeadlineExceeded) {
			kind = remote.KindTimeout
		}
		log.Errorw("provisioning failed",
			"phase", out.FailedPhase,
			"kind", kind,
			"error", out.Reason,
			"resource", out.Reconcile.ResourceName,
			"createIssued", out.Reconcile.CreateIssued,
		)
	}
}
