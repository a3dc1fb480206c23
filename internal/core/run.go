package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kerbx/internal/envelope"
	"kerbx/internal/messaging"
	"kerbx/internal/types"
)

// Run takes the unit from power-on through flight. It returns nil after a
// landing and the cause otherwise. Environmental failures leave the unit in
// Error with the cause recorded before Run returns.
func (a *Avionics) Run(ctx context.Context) error {
	a.ToPost()
	a.announce()
	if err := a.post(); err != nil {
		return a.fail("POST", err)
	}

	a.ToIdle()
	a.announce()
	if err := a.sendWatchdog(); err != nil {
		return a.fail("send watchdog", err)
	}
	if err := a.awaitFlightPlan(ctx); err != nil {
		return a.fail("idle", err)
	}

	a.ToReady()
	a.announce()
	if err := a.readyForLaunch(); err != nil {
		return a.fail("ready for launch", err)
	}
	seconds, err := a.awaitLaunch(ctx)
	if err != nil {
		return a.fail("ready", err)
	}

	a.ToCountdown()
	a.announce()
	if err := a.countdown(ctx, seconds); err != nil {
		return a.fail("countdown", err)
	}

	a.ToInFlight()
	a.announce()
	return a.RunFlight(ctx)
}

// fail records an environmental failure and returns it wrapped. Context
// cancellation is shutdown, not a fault.
func (a *Avionics) fail(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	message := fmt.Sprintf("%s: %v", what, err)
	a.logger.Errorf("Fault in %s: %s", a.State(), message)
	a.ToError(message)
	a.announce()

	// Best effort: the link may be what failed.
	if serr := a.sendWatchdog(); serr != nil {
		a.logger.Debugf("Could not report fault to ground: %v", serr)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// announce publishes the current state to Redis and the panel. Failures are
// logged only.
func (a *Avionics) announce() {
	state := a.State()
	message := a.ErrorMessage()

	if a.msg != nil {
		if err := a.msg.PublishAvionicsState(state, message); err != nil {
			a.logger.Warnf("Failed to publish state: %v", err)
		}
		if message != "" {
			if err := a.msg.ReportFault(a.faulted(), message); err != nil {
				a.logger.Warnf("Failed to report fault: %v", err)
			}
		}
	}
	if a.indicators != nil {
		if err := a.indicators.Show(state); err != nil {
			a.logger.Warnf("Failed to set indicators: %v", err)
		}
	}
}

// faulted is the state the unit was in when it entered Error.
func (a *Avionics) faulted() types.AvionicsState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.faultedFrom
}

// post samples every sensor once.
func (a *Avionics) post() error {
	t, err := a.sample()
	if err != nil {
		return err
	}
	a.logger.Infof("POST passed: lat=%.4f lon=%.4f alt=%.1f heading=%.1f pitch=%.1f roll=%.1f",
		t.Lat, t.Lon, t.Alt, t.Yaw, t.Pitch, t.Roll)
	return nil
}

// awaitFlightPlan keeps the ground link alive until a valid plan arrives.
// Invalid plans are logged and ignored.
func (a *Avionics) awaitFlightPlan(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.IdleWatchdog)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-a.link.Receive():
			if !ok {
				return ErrLinkClosed
			}
			fp, isPlan := e.(envelope.FlightPlan)
			if !isPlan {
				a.logger.Debugf("Ignoring %s envelope while waiting for a flight plan", e.Kind())
				continue
			}
			if err := a.LoadFlightPlan(&fp.Plan); err != nil {
				a.logger.Warnf("%v", err)
				continue
			}
			return nil

		case cmd := <-a.commands:
			if cmd == messaging.CommandAbort {
				return ErrAborted
			}
			a.logger.Warnf("Ignoring %s command: no flight plan loaded", cmd)

		case <-ticker.C:
			if err := a.sendWatchdog(); err != nil {
				return fmt.Errorf("send watchdog: %w", err)
			}
		}
	}
}

// readyForLaunch puts the vehicle in its pad configuration.
func (a *Avionics) readyForLaunch() error {
	if err := a.vehicle.SetAttitudeHold(true); err != nil {
		return fmt.Errorf("attitude hold: %w", err)
	}
	if err := a.vehicle.SetReactionControl(true); err != nil {
		return fmt.Errorf("reaction control: %w", err)
	}
	if err := a.vehicle.SetThrottle(0); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return nil
}

// awaitLaunch waits for a Countdown envelope from the ground or a launch
// command and returns the T-minus to count down from.
func (a *Avionics) awaitLaunch(ctx context.Context) (uint32, error) {
	ticker := time.NewTicker(a.cfg.IdleWatchdog)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()

		case e, ok := <-a.link.Receive():
			if !ok {
				return 0, ErrLinkClosed
			}
			if c, isCountdown := e.(envelope.Countdown); isCountdown {
				a.logger.Infof("Launch requested by ground, T-%d", c.Seconds)
				return c.Seconds, nil
			}
			a.logger.Debugf("Ignoring %s envelope while ready", e.Kind())

		case cmd := <-a.commands:
			switch cmd {
			case messaging.CommandLaunch:
				a.logger.Infof("Launch commanded, T-%d", a.cfg.Countdown)
				return a.cfg.Countdown, nil
			case messaging.CommandAbort, messaging.CommandLand:
				return 0, ErrAborted
			}

		case <-ticker.C:
			if err := a.sendWatchdog(); err != nil {
				return 0, fmt.Errorf("send watchdog: %w", err)
			}
		}
	}
}

// countdown reports T-minus once per tick down to zero. Abort and land
// commands stop it.
func (a *Avionics) countdown(ctx context.Context, seconds uint32) error {
	ticker := time.NewTicker(a.cfg.CountdownTick)
	defer ticker.Stop()

	for remaining := seconds; ; remaining-- {
		if err := a.link.Send(envelope.Countdown{Seconds: remaining, Time: a.epoch()}); err != nil {
			return fmt.Errorf("send countdown: %w", err)
		}
		if err := a.sendWatchdog(); err != nil {
			return fmt.Errorf("send watchdog: %w", err)
		}
		a.logger.Infof("T-%d", remaining)
		if remaining == 0 {
			return nil
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cmd := <-a.commands:
				if cmd == messaging.CommandAbort || cmd == messaging.CommandLand {
					return ErrAborted
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}
