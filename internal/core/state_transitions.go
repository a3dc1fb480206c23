package core

import (
	"fmt"

	"github.com/librescoot/librefsm"

	"kerbx/internal/fsm"
	"kerbx/internal/types"
)

// ContractViolation is the panic value for a call the caller should never
// have made: a transition from the wrong state, ToReady without a plan, or
// advancing the cursor past the end of the plan. It is never returned as an
// error.
type ContractViolation struct {
	Op     string
	State  types.AvionicsState
	Want   types.AvionicsState
	Reason string
}

func (e *ContractViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("%s requires state %s, unit is in %s", e.Op, e.Want, e.State)
}

// transition moves from to's predecessor into to. Nothing but the state
// changes.
func (a *Avionics) transition(op string, ev librefsm.EventID, to types.AvionicsState) {
	want, _ := to.Predecessor()
	from := a.State()
	if from != want {
		panic(&ContractViolation{Op: op, State: from, Want: want})
	}

	if err := a.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		panic(&ContractViolation{Op: op, State: from, Want: want, Reason: err.Error()})
	}
	if got := a.State(); got != to {
		panic(&ContractViolation{Op: op, State: got, Want: want, Reason: "state machine refused " + string(ev)})
	}
}

func (a *Avionics) ToPost() { a.transition("to-post", fsm.EvPowerOn, types.StatePOST) }

func (a *Avionics) ToIdle() { a.transition("to-idle", fsm.EvPostComplete, types.StateIdle) }

// ToReady additionally requires an accepted flight plan, whatever the state.
func (a *Avionics) ToReady() {
	if !a.HasFlightPlan() {
		panic(&ContractViolation{Op: "to-ready", State: a.State(), Want: types.StateIdle, Reason: "no flight plan loaded"})
	}
	a.transition("to-ready", fsm.EvPlanAccepted, types.StateReady)
}

func (a *Avionics) ToCountdown() { a.transition("to-countdown", fsm.EvLaunch, types.StateCountdown) }

func (a *Avionics) ToInFlight() { a.transition("to-inflight", fsm.EvLiftoff, types.StateInFlight) }

func (a *Avionics) ToLanded() { a.transition("to-landed", fsm.EvTouchdown, types.StateLanded) }

// ToError records message and enters Error from any state. In Error it only
// replaces the message.
func (a *Avionics) ToError(message string) {
	a.mu.Lock()
	a.errorMessage = message
	a.mu.Unlock()

	if a.State() == types.StateError {
		return
	}
	if err := a.machine.SendSync(librefsm.Event{ID: fsm.EvFault}); err != nil {
		a.logger.Warnf("Fault event failed, forcing error state: %v", err)
	}
	if a.State() != types.StateError {
		if err := a.machine.SetState(fsm.StateError); err != nil {
			a.logger.Errorf("Failed to force error state: %v", err)
		}
	}
}

// IncStep advances the plan cursor by one. The cursor never passes the
// plan's step count.
func (a *Avionics) IncStep() {
	state := a.State()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.plan == nil {
		panic(&ContractViolation{Op: "inc-step", State: state, Reason: "no flight plan loaded"})
	}
	if a.cursor >= a.plan.StepCount {
		panic(&ContractViolation{
			Op:     "inc-step",
			State:  state,
			Reason: fmt.Sprintf("cursor %d already at step count %d", a.cursor, a.plan.StepCount),
		})
	}
	a.cursor++
}
