package fsm

import "github.com/librescoot/librefsm"

// NewDefinition creates the avionics lifecycle definition. Every lifecycle
// state has exactly one way in, from its predecessor. Error is entered from
// the operational parent and has no way out.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateOperational).
		State(StateOff, librefsm.WithParent(StateOperational)).
		State(StatePOST, librefsm.WithParent(StateOperational)).
		State(StateIdle, librefsm.WithParent(StateOperational)).
		State(StateReady, librefsm.WithParent(StateOperational)).
		State(StateCountdown, librefsm.WithParent(StateOperational)).
		State(StateInFlight,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterInFlight),
		).
		State(StateLanded, librefsm.WithParent(StateOperational)).
		State(StateError,
			librefsm.WithOnEnter(actions.EnterError),
		).

		// === Transitions ===
		Transition(StateOff, EvPowerOn, StatePOST).
		Transition(StatePOST, EvPostComplete, StateIdle).
		Transition(StateIdle, EvPlanAccepted, StateReady,
			librefsm.WithGuard(actions.PlanLoaded),
		).
		Transition(StateReady, EvLaunch, StateCountdown).
		Transition(StateCountdown, EvLiftoff, StateInFlight).
		Transition(StateInFlight, EvTouchdown, StateLanded).

		// Fault from anywhere in the lifecycle
		Transition(StateOperational, EvFault, StateError).
		Initial(StateOff)
}
