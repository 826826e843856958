package orchestrator

import (
	"context"

	"github.com/looplab/fsm"
)

// State is a session lifecycle state.
type State string

const (
	StateInitializing    State = "initializing"
	StateAwaitingAIReady State = "awaiting_ai_ready"
	StateActive          State = "active"
	StateDraining        State = "draining"
	StateClosed          State = "closed"
)

// State machine events.
const (
	eventStart = "start"
	eventReady = "ready"
	eventDrain = "drain"
	eventClose = "close"
)

// newMachine builds the session lifecycle. onChange runs after every transition.
func newMachine(onChange func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateInitializing),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateInitializing)}, Dst: string(StateAwaitingAIReady)},
			{Name: eventReady, Src: []string{string(StateAwaitingAIReady)}, Dst: string(StateActive)},
			{Name: eventDrain, Src: []string{string(StateInitializing), string(StateAwaitingAIReady), string(StateActive)}, Dst: string(StateDraining)},
			{Name: eventClose, Src: []string{string(StateDraining)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onChange(State(e.Src), State(e.Dst))
			},
		},
	)
}
