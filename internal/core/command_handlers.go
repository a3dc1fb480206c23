package core

import (
	"fmt"

	"kerbx/internal/messaging"
)

// HandleCommand queues an operator command for the control loop. It never
// blocks; a full queue rejects the command.
func (a *Avionics) HandleCommand(cmd messaging.Command) error {
	select {
	case a.commands <- cmd:
		a.logger.Debugf("Queued %s command", cmd)
		return nil
	default:
		return fmt.Errorf("command queue full, dropping %s", cmd)
	}
}

// Abort is HandleCommand(abort) for hardware inputs that cannot handle an
// error.
func (a *Avionics) Abort() {
	if err := a.HandleCommand(messaging.CommandAbort); err != nil {
		a.logger.Errorf("Abort: %v", err)
	}
}
