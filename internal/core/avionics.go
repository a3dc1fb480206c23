package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"kerbx/internal/flightplan"
	"kerbx/internal/logger"
	"kerbx/internal/messaging"
	"kerbx/internal/types"
)

const (
	DefaultPollInterval  = 2 * time.Millisecond
	DefaultCountdown     = 10
	DefaultCountdownTick = time.Second
	DefaultIdleWatchdog  = time.Second

	commandQueueSize = 16
)

var (
	ErrNotIdle    = errors.New("flight plan can only be loaded in idle")
	ErrLinkClosed = errors.New("ground link closed")
	ErrAborted    = errors.New("aborted by operator")
)

type Config struct {
	// PollInterval is the executor pause between ticks.
	PollInterval time.Duration
	// Countdown is the T-minus in seconds used when launch is commanded
	// without one.
	Countdown     uint32
	CountdownTick time.Duration
	// IdleWatchdog is the keep-alive period while waiting on the ground.
	IdleWatchdog time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		Countdown:     DefaultCountdown,
		CountdownTick: DefaultCountdownTick,
		IdleWatchdog:  DefaultIdleWatchdog,
	}
}

// Avionics is the flight control unit. Its lifecycle and plan are driven
// from a single goroutine running Run; the read accessors are safe to call
// from anywhere.
type Avionics struct {
	cfg        Config
	logger     *logger.Logger
	link       GroundLink
	vehicle    Vehicle
	msg        MessagingClient
	indicators Indicators
	now        func() time.Time

	machine   *librefsm.Machine
	stopFSM   context.CancelFunc
	commands  chan messaging.Command
	inboxDone bool

	mu           sync.RWMutex
	plan         *flightplan.FlightPlan
	cursor       uint32
	errorMessage string
	faultedFrom  types.AvionicsState
	launchedAt   time.Time
}

// NewAvionics creates the unit in Off and starts its state machine. msg and
// indicators may be nil.
func NewAvionics(cfg Config, link GroundLink, vehicle Vehicle, msg MessagingClient, indicators Indicators, l *logger.Logger) (*Avionics, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = DefaultCountdownTick
	}
	if cfg.IdleWatchdog <= 0 {
		cfg.IdleWatchdog = DefaultIdleWatchdog
	}

	a := &Avionics{
		cfg:        cfg,
		logger:     l,
		link:       link,
		vehicle:    vehicle,
		msg:        msg,
		indicators: indicators,
		now:        time.Now,
		commands:   make(chan messaging.Command, commandQueueSize),
	}

	if err := a.initFSM(); err != nil {
		return nil, fmt.Errorf("failed to start state machine: %w", err)
	}
	if msg != nil {
		msg.SetCallbacks(messaging.Callbacks{CommandCallback: a.HandleCommand})
	}
	return a, nil
}

// Close stops the state machine and the ground link.
func (a *Avionics) Close() error {
	a.stopFSM()
	return a.link.Close()
}

func (a *Avionics) State() types.AvionicsState {
	return types.AvionicsState(a.machine.CurrentState())
}

func (a *Avionics) ErrorMessage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errorMessage
}

// CurrentStep is the index of the next step to execute.
func (a *Avionics) CurrentStep() uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cursor
}

func (a *Avionics) FlightPlan() *flightplan.FlightPlan {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plan
}

func (a *Avionics) HasFlightPlan() bool {
	return a.FlightPlan() != nil
}

// LoadFlightPlan accepts p if the unit is idle and p is valid. The unit keeps
// its own copy. A rejected plan leaves any earlier plan in place.
func (a *Avionics) LoadFlightPlan(p *flightplan.FlightPlan) error {
	if state := a.State(); state != types.StateIdle {
		return fmt.Errorf("%w: state is %s", ErrNotIdle, state)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("flight plan rejected: %w", err)
	}

	cp := p.Clone()

	a.mu.Lock()
	a.plan = cp
	a.cursor = 0
	a.mu.Unlock()

	a.logger.Infof("Flight plan accepted: %d steps", cp.StepCount)
	return nil
}

// currentStep returns the step under the cursor, if any remain.
func (a *Avionics) currentStep() (flightplan.Step, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.plan == nil || a.cursor >= a.plan.StepCount {
		return flightplan.Step{}, false
	}
	return a.plan.Steps[a.cursor], true
}
