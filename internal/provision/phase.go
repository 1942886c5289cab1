package provision

import (
	"context"

	"github.com/looplab/fsm"
)

// Phase is a step of a provisioning run, or one of its terminal states.
type Phase string

const (
	PhasePending        Phase = "Pending"
	PhaseGenerateConfig Phase = "GenerateConfig"
	PhaseCreate         Phase = "Create"
	PhaseStart          Phase = "Start"
	PhaseAwaitInit      Phase = "AwaitInit"
	PhaseResolveAddress Phase = "ResolveAddress"
	PhaseSucceeded      Phase = "Succeeded"
	PhaseFailed         Phase = "Failed"
)

// Phases lists the working phases in execution order.
var Phases = []Phase{PhaseGenerateConfig, PhaseCreate, PhaseStart, PhaseAwaitInit, PhaseResolveAddress}

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

const (
	eventGenerateConfig = "generate_config"
	eventCreate         = "create"
	eventStart          = "start"
	eventAwaitInit      = "await_init"
	eventResolveAddress = "resolve_address"
	eventSucceed        = "succeed"
	eventFail           = "fail"
)

var phaseEvents = map[Phase]string{
	PhaseGenerateConfig: eventGenerateConfig,
	PhaseCreate:         eventCreate,
	PhaseStart:          eventStart,
	PhaseAwaitInit:      eventAwaitInit,
	PhaseResolveAddress: eventResolveAddress,
	PhaseSucceeded:      eventSucceed,
	PhaseFailed:         eventFail,
}

// newPhaseFSM builds the phase machine. Only forward, single-step transitions
// exist, so a skipped or reordered phase is rejected by the FSM itself.
func newPhaseFSM(onEnter func(ctx context.Context, dst Phase)) *fsm.FSM {
	events := fsm.Events{
		{Name: eventGenerateConfig, Src: []string{string(PhasePending)}, Dst: string(PhaseGenerateConfig)},
		{Name: eventCreate, Src: []string{string(PhaseGenerateConfig)}, Dst: string(PhaseCreate)},
		{Name: eventStart, Src: []string{string(PhaseCreate)}, Dst: string(PhaseStart)},
		{Name: eventAwaitInit, Src: []string{string(PhaseStart)}, Dst: string(PhaseAwaitInit)},
		{Name: eventResolveAddress, Src: []string{string(PhaseAwaitInit)}, Dst: string(PhaseResolveAddress)},
		{Name: eventSucceed, Src: []string{string(PhaseResolveAddress)}, Dst: string(PhaseSucceeded)},
		{Name: eventFail, Src: []string{
			string(PhasePending),
			string(PhaseGenerateConfig),
			string(PhaseCreate),
			string(PhaseStart),
			string(PhaseAwaitInit),
			string(PhaseResolveAddress),
		}, Dst: string(PhaseFailed)},
	}

	return fsm.NewFSM(
		string(PhasePending),
		events,
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				onEnter(ctx, Phase(e.Dst))
			},
		},
	)
}
