package fsm

import (
	"github.com/librescoot/librefsm"

	"kerbx/internal/types"
)

// Avionics states
const (
	// Parent of every lifecycle state; a fault from any of them lands in StateError.
	StateOperational librefsm.StateID = "operational"

	StateOff       = librefsm.StateID(types.StateOff)
	StatePOST      = librefsm.StateID(types.StatePOST)
	StateIdle      = librefsm.StateID(types.StateIdle)
	StateReady     = librefsm.StateID(types.StateReady)
	StateCountdown = librefsm.StateID(types.StateCountdown)
	StateInFlight  = librefsm.StateID(types.StateInFlight)
	StateLanded    = librefsm.StateID(types.StateLanded)
	StateError     = librefsm.StateID(types.StateError)
)

// Avionics events
const (
	EvPowerOn      librefsm.EventID = "power-on"
	EvPostComplete librefsm.EventID = "post-complete"
	EvPlanAccepted librefsm.EventID = "plan-accepted"
	EvLaunch       librefsm.EventID = "launch"
	EvLiftoff      librefsm.EventID = "liftoff"
	EvTouchdown    librefsm.EventID = "touchdown"

	EvFault librefsm.EventID = "fault"
)

// ToState converts a machine state to the published avionics state. The
// parent state never becomes current, it maps to itself for logging only.
func ToState(id librefsm.StateID) types.AvionicsState {
	return types.AvionicsState(string(id))
}
