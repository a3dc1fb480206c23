package core

import (
	"context"
	"fmt"
	"time"

	"kerbx/internal/envelope"
	"kerbx/internal/flightplan"
	"kerbx/internal/messaging"
	"kerbx/internal/types"
)

// sample reads every sensor once. The first failure aborts the sample.
func (a *Avionics) sample() (envelope.Telemetry, error) {
	var t envelope.Telemetry
	reads := []struct {
		name string
		read func() (float64, error)
		dst  *float64
	}{
		{"latitude", a.vehicle.Latitude, &t.Lat},
		{"longitude", a.vehicle.Longitude, &t.Lon},
		{"altitude", a.vehicle.Altitude, &t.Alt},
		{"heading", a.vehicle.Heading, &t.Yaw},
		{"pitch", a.vehicle.Pitch, &t.Pitch},
		{"roll", a.vehicle.Roll, &t.Roll},
		{"velocity", a.vehicle.Velocity, &t.Velocity},
	}
	for _, r := range reads {
		v, err := r.read()
		if err != nil {
			return envelope.Telemetry{}, fmt.Errorf("read %s: %w", r.name, err)
		}
		*r.dst = v
	}
	t.Time = a.epoch()
	return t, nil
}

func (a *Avionics) epoch() uint64 {
	return uint64(a.now().Unix())
}

func readingOf(t envelope.Telemetry) flightplan.Reading {
	return flightplan.Reading{Lat: t.Lat, Lon: t.Lon, Alt: t.Alt, Time: t.Time}
}

// dispatch commands the vehicle for one step.
func (a *Avionics) dispatch(step flightplan.Step) error {
	switch step.Action {
	case flightplan.Ignite, flightplan.NextStage:
		if err := a.vehicle.AdvanceStage(); err != nil {
			return fmt.Errorf("advance stage: %w", err)
		}
	case flightplan.Reorient:
		if step.Reorient == nil {
			panic(&ContractViolation{Op: "dispatch", State: a.State(), Reason: "reorient step without attitude"})
		}
		if err := a.vehicle.SetAutopilot(true); err != nil {
			return fmt.Errorf("engage autopilot: %w", err)
		}
		if err := a.vehicle.SetAutopilotTarget(step.Reorient.Pitch, step.Reorient.Yaw); err != nil {
			return fmt.Errorf("set autopilot target: %w", err)
		}
	case flightplan.ThrottleLevel:
		if step.Throttle == nil {
			panic(&ContractViolation{Op: "dispatch", State: a.State(), Reason: "throttle step without level"})
		}
		if err := a.vehicle.SetThrottle(step.Throttle.Throttle); err != nil {
			return fmt.Errorf("set throttle: %w", err)
		}
	case flightplan.Coast:
		if err := a.vehicle.SetAutopilot(false); err != nil {
			return fmt.Errorf("disengage autopilot: %w", err)
		}
	default:
		panic(&ContractViolation{Op: "dispatch", State: a.State(), Reason: "unknown action " + step.Action.String()})
	}
	return nil
}

// ExecuteStep runs one executor tick: sample the vehicle, dispatch the step
// under the cursor if its trigger holds, then report to the ground. fired is
// true when a step was dispatched. Any error has already put the unit into
// Error.
func (a *Avionics) ExecuteStep() (fired bool, err error) {
	t, err := a.sample()
	if err != nil {
		return false, a.fail("sensor", err)
	}

	if step, ok := a.currentStep(); ok && flightplan.Check(step.Trigger, readingOf(t)) {
		n := a.CurrentStep()
		if err := a.dispatch(step); err != nil {
			return false, a.fail(fmt.Sprintf("step %d (%s)", n, step.Action), err)
		}
		a.IncStep()
		fired = true

		a.logger.Infof("Step %d dispatched: %s on %s", n, step.Action, step.Trigger)
		if a.msg != nil {
			if err := a.msg.PublishStep(n+1, a.FlightPlan().StepCount, step.Action.String()); err != nil {
				a.logger.Warnf("Failed to publish step: %v", err)
			}
		}
	}

	if err := a.sendWatchdog(); err != nil {
		return fired, a.fail("send watchdog", err)
	}
	if err := a.link.Send(t); err != nil {
		return fired, a.fail("send telemetry", err)
	}
	return fired, nil
}

// RunFlight polls the plan until a land command arrives. After the last step
// it keeps reporting on the same cadence.
func (a *Avionics) RunFlight(ctx context.Context) error {
	timer := time.NewTimer(a.cfg.PollInterval)
	defer timer.Stop()

	for {
		if landed, err := a.handleFlightCommands(); err != nil || landed {
			return err
		}
		a.drainInbox()

		if _, err := a.ExecuteStep(); err != nil {
			return err
		}

		timer.Reset(a.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (a *Avionics) handleFlightCommands() (landed bool, err error) {
	for {
		select {
		case cmd := <-a.commands:
			switch cmd {
			case messaging.CommandLand:
				a.ToLanded()
				a.announce()
				a.mu.RLock()
				elapsed := a.now().Sub(a.launchedAt)
				a.mu.RUnlock()
				a.logger.Infof("Landed after %s, %d/%d steps executed", elapsed.Round(time.Second), a.CurrentStep(), a.FlightPlan().StepCount)
				return true, nil
			case messaging.CommandAbort:
				return false, a.fail("flight", ErrAborted)
			default:
				a.logger.Warnf("Ignoring %s command in %s", cmd, types.StateInFlight)
			}
		default:
			return false, nil
		}
	}
}

// drainInbox discards whatever the ground sent during flight. Plans cannot
// change after launch.
func (a *Avionics) drainInbox() {
	if a.inboxDone {
		return
	}
	for {
		select {
		case e, ok := <-a.link.Receive():
			if !ok {
				a.inboxDone = true
				a.logger.Warnf("Ground link receive side closed in flight")
				return
			}
			a.logger.Debugf("Ignoring %s envelope in flight", e.Kind())
		default:
			return
		}
	}
}

func (a *Avionics) sendWatchdog() error {
	w := envelope.Watchdog{Status: envelope.StatusAckAlive, Time: a.epoch()}
	if a.State() == types.StateError {
		w.Status = envelope.StatusFault
		w.Message = a.ErrorMessage()
	}
	return a.link.Send(w)
}
