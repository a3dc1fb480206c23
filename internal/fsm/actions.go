package fsm

import "github.com/librescoot/librefsm"

// Actions is implemented by the avionics unit. Callbacks only record state;
// they never perform I/O.
type Actions interface {
	EnterInFlight(c *librefsm.Context) error
	EnterError(c *librefsm.Context) error

	PlanLoaded(c *librefsm.Context) bool
}
