package core

import (
	"context"

	"github.com/librescoot/librefsm"

	"kerbx/internal/fsm"
)

// Ensure Avionics implements fsm.Actions
var _ fsm.Actions = (*Avionics)(nil)

// initFSM builds and starts the lifecycle machine. It runs on its own context
// so a fault can still be recorded while the caller's context is shutting
// down; Close stops it.
func (a *Avionics) initFSM() error {
	machine, err := fsm.NewDefinition(a).Build()
	if err != nil {
		return err
	}
	a.machine = machine

	a.machine.OnStateChange(func(from, to librefsm.StateID) {
		a.logger.Infof("State transition: %s -> %s", fsm.ToState(from), fsm.ToState(to))
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.machine.Start(ctx); err != nil {
		cancel()
		return err
	}
	a.stopFSM = cancel
	a.logger.Debugf("librefsm state machine started")
	return nil
}

// === State Entry Actions ===

func (a *Avionics) EnterInFlight(c *librefsm.Context) error {
	a.mu.Lock()
	a.launchedAt = a.now()
	a.mu.Unlock()
	return nil
}

func (a *Avionics) EnterError(c *librefsm.Context) error {
	a.mu.Lock()
	a.faultedFrom = fsm.ToState(c.FromState)
	a.mu.Unlock()
	return nil
}

// === Guards ===

func (a *Avionics) PlanLoaded(c *librefsm.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plan != nil
}
