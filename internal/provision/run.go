package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/jbweber/thoth/internal/remote"
)

// Reconcile tells the caller what may exist remotely after a run ended, so a
// failed run never leaves an unreported resource behind.
type Reconcile struct {
	ResourceName string `json:"resourceName" yaml:"resourceName"`
	CreateIssued bool   `json:"createIssued" yaml:"createIssued"`
	Started      bool   `json:"started" yaml:"started"`
}

// Outcome is the terminal state of a run: Succeeded(address) or
// Failed(phase, reason). A succeeded run with an empty Address reached the
// end without learning its address; AddressErr then says why.
type Outcome struct {
	Succeeded    bool               `json:"succeeded" yaml:"succeeded"`
	Address      string             `json:"address,omitempty" yaml:"address,omitempty"`
	Interfaces   []remote.Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	AddressErr   error              `json:"-" yaml:"-"`
	PollAttempts int                `json:"pollAttempts" yaml:"pollAttempts"`
	FailedPhase  Phase              `json:"failedPhase,omitempty" yaml:"failedPhase,omitempty"`
	Reason       error              `json:"-" yaml:"-"`
	Reconcile    Reconcile          `json:"reconcile" yaml:"reconcile"`
}

// AddressKnown reports whether a succeeded run resolved its address.
func (o Outcome) AddressKnown() bool { return o.Succeeded && o.Address != "" }

// Err returns nil for a succeeded run and a phase-qualified error otherwise.
func (o Outcome) Err() error {
	if o.Succeeded {
		return nil
	}
	return fmt.Errorf("provisioning failed at %s: %w", o.FailedPhase, o.Reason)
}

func (o Outcome) String() string {
	switch {
	case o.AddressKnown():
		return fmt.Sprintf("Succeeded(%s)", o.Address)
	case o.Succeeded:
		return "Succeeded(address unknown)"
	default:
		return fmt.Sprintf("Failed(%s, %v)", o.FailedPhase, o.Reason)
	}
}

// Transition is one observable step of a run: entering a phase, or the
// terminal state with its Outcome.
type Transition struct {
	RunID   string
	Phase   Phase
	At      time.Time
	Outcome *Outcome
}

// PhaseRecord is the per-phase outcome kept on a run.
type PhaseRecord struct {
	Phase   Phase
	Started time.Time
	Ended   time.Time
	Err     error
}

// Run tracks one submitted request from GenerateConfig to a terminal state.
type Run struct {
	ID        string
	Submitted time.Time

	// owner is the ID of the orchestrator that submitted the run.
	owner string

	mu          sync.Mutex
	request     remote.ProvisioningRequest
	machine     *fsm.FSM
	phase       Phase
	history     []PhaseRecord
	reconcile   Reconcile
	outcome     *Outcome
	now         func() time.Time
	transitions chan Transition
	done        chan struct{}
}

func newRun(id string, req remote.ProvisioningRequest, now func() time.Time) *Run {
	r := &Run{
		ID:          id,
		Submitted:   now(),
		request:     req,
		phase:       PhasePending,
		now:         now,
		transitions: make(chan Transition, len(Phases)+1),
		done:        make(chan struct{}),
	}
	r.machine = newPhaseFSM(r.onEnter)
	return r
}

// onEnter runs inside the FSM transition. It closes the previous phase
// record, opens the next one, and publishes the transition.
func (r *Run) onEnter(_ context.Context, dst Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	if n := len(r.history); n > 0 && r.history[n-1].Ended.IsZero() {
		r.history[n-1].Ended = at
	}
	r.phase = dst

	t := Transition{RunID: r.ID, Phase: dst, At: at}
	if dst.Terminal() {
		out := *r.outcome
		t.Outcome = &out
	} else {
		r.history = append(r.history, PhaseRecord{Phase: dst, Started: at})
	}
	r.transitions <- t
	if dst.Terminal() {
		close(r.transitions)
		close(r.done)
	}
}

// advance fires the event for p. The FSM refuses transitions on a cancelled
// context, and a cancelled run must still reach Failed.
func (r *Run) advance(ctx context.Context, p Phase) error {
	return r.machine.Event(context.WithoutCancel(ctx), phaseEvents[p])
}

func (r *Run) finish(ctx context.Context, out Outcome) error {
	r.mu.Lock()
	if n := len(r.history); n > 0 && !out.Succeeded {
		r.history[n-1].Err = out.Reason
	}
	out.Reconcile = r.reconcile
	r.outcome = &out
	r.mu.Unlock()

	if out.Succeeded {
		return r.advance(ctx, PhaseSucceeded)
	}
	return r.advance(ctx, PhaseFailed)
}

func (r *Run) setRequest(req remote.ProvisioningRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request = req
}

func (r *Run) updateReconcile(fn func(*Reconcile)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.reconcile)
}

// Transitions delivers every phase entry and then the terminal state, in
// order, one at a time. The channel is closed after the terminal transition.
func (r *Run) Transitions() <-chan Transition { return r.transitions }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run is terminal or ctx is done.
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		out, _ := r.Outcome()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Phase is the phase the run is currently in.
func (r *Run) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Request is the request as normalized by GenerateConfig, or as submitted
// before that phase completes.
func (r *Run) Request() remote.ProvisioningRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.request
}

// Outcome returns the terminal state once the run has one.
func (r *Run) Outcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome == nil || !r.phase.Terminal() {
		return Outcome{}, false
	}
	return *r.outcome, true
}

// History returns a copy of the per-phase records.
func (r *Run) History() []PhaseRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhaseRecord, len(r.history))
	copy(out, r.history)
	return out
}

// PhaseStatus is a PhaseRecord with its error flattened to text.
type PhaseStatus struct {
	Phase   Phase     `json:"phase" yaml:"phase"`
	Started time.Time `json:"started" yaml:"started"`
	Ended   time.Time `json:"ended" yaml:"ended"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunStatus is a point-in-time view of a run that survives encoding.
type RunStatus struct {
	ID        string        `json:"id" yaml:"id"`
	Hostname  string        `json:"hostname" yaml:"hostname"`
	Phase     Phase         `json:"phase" yaml:"phase"`
	Submitted time.Time     `json:"submitted" yaml:"submitted"`
	History   []PhaseStatus `json:"history" yaml:"history"`
	// Outcome is set once the run is terminal. Its errors travel in
	// Reason and AddressError.
	Outcome      *Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Reason       string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	AddressError string   `json:"addressError,omitempty" yaml:"addressError,omitempty"`
}

// Terminal reports whether the run had finished when the view was taken.
func (s RunStatus) Terminal() bool { return s.Phase.Terminal() }

// Status snapshots the run.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunStatus{
		ID:        r.ID,
		Hostname:  r.request.Hostname,
		Phase:     r.phase,
		Submitted: r.Submitted,
		History:   make([]PhaseStatus, 0, len(r.history)),
	}
	for _, h := range r.history {
		ps := PhaseStatus{Phase: h.Phase, Started: h.Started, Ended: h.Ended}
		if h.Err != nil {
			ps.Error = h.Err.Error()
		}
		st.History = append(st.History, ps)
	}
	if r.outcome != nil && r.phase.Terminal() {
		out := *r.outcome
		st.Outcome = &out
		if out.Reason != nil {
			st.Reason = out.Reason.Error()
		}
		if out.AddressErr != nil {
			st.AddressError = out.AddressErr.Error()
		}
	}
	return st
}
