// Package vehicle provides a kinematic stand-in for the flight vehicle. It
// satisfies the avionics capability interface and is used for bench runs and
// tests.
package vehicle

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const metersPerDegLat = 111_320.0

var ErrNoStage = errors.New("no stages left")

type Config struct {
	OriginLat float64
	OriginLon float64
	OriginAlt float64

	Stages      int
	Thrust      float64 // m/s² at full throttle
	Gravity     float64 // m/s²
	SlewRate    float64 // autopilot attitude change, deg/s
	LaunchPitch float64 // attitude on the pad, deg above horizon

	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		OriginLat:   -0.0972,
		OriginLon:   -74.5577,
		OriginAlt:   77,
		Stages:      3,
		Thrust:      25,
		Gravity:     9.81,
		SlewRate:    10,
		LaunchPitch: 90,
		Now:         time.Now,
	}
}

// Sim integrates a point-mass vehicle lazily: every call advances the model
// to the current time first.
type Sim struct {
	mu  sync.Mutex
	cfg Config

	last time.Time

	north, east, alt float64 // metres from origin, altitude above sea level
	vn, ve, vz       float64

	pitch, heading, roll float64

	stage    int
	throttle float64

	autopilot     bool
	targetPitch   float64
	targetHeading float64
	attitudeHold  bool
	reactionCtrl  bool

	faults map[string]error
}

func New(cfg Config) *Sim {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sim{
		cfg:    cfg,
		last:   cfg.Now(),
		alt:    cfg.OriginAlt,
		pitch:  cfg.LaunchPitch,
		faults: make(map[string]error),
	}
}

// Fail makes every later call of op return err. A nil err clears it. Op
// names match the method names, e.g. "Altitude" or "SetThrottle".
func (s *Sim) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// advance must be called with mu held.
func (s *Sim) advance() {
	now := s.cfg.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt > 0 {
		s.step(dt)
	}
}

// step integrates the model by dt seconds.
func (s *Sim) step(dt float64) {
	if s.autopilot {
		s.pitch = approach(s.pitch, s.targetPitch, s.cfg.SlewRate*dt)
		s.heading = approach(s.heading, s.targetHeading, s.cfg.SlewRate*dt)
	}

	accel := 0.0
	if s.stage > 0 {
		accel = s.throttle * s.cfg.Thrust
	}
	p := s.pitch * math.Pi / 180
	h := s.heading * math.Pi / 180

	s.vz += (accel*math.Sin(p) - s.cfg.Gravity) * dt
	horiz := accel * math.Cos(p) * dt
	s.vn += horiz * math.Cos(h)
	s.ve += horiz * math.Sin(h)

	s.alt += s.vz * dt
	s.north += s.vn * dt
	s.east += s.ve * dt

	if s.alt <= s.cfg.OriginAlt {
		s.alt = s.cfg.OriginAlt
		s.vz = 0
		s.vn, s.ve = 0, 0
	}
}

func approach(cur, des, maxStep float64) float64 {
	diff := des - cur
	if diff > maxStep {
		return cur + maxStep
	}
	if diff < -maxStep {
		return cur - maxStep
	}
	return des
}

func (s *Sim) read(op string, f func() float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[op]; err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.advance()
	return f(), nil
}

func (s *Sim) command(op string, f func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.advance()
	return f()
}

func (s *Sim) Latitude() (float64, error) {
	return s.read("Latitude", func() float64 {
		return s.cfg.OriginLat + s.north/metersPerDegLat
	})
}

func (s *Sim) Longitude() (float64, error) {
	return s.read("Longitude", func() float64 {
		mPerDegLon := metersPerDegLat * math.Cos(s.cfg.OriginLat*math.Pi/180)
		return s.cfg.OriginLon + s.east/mPerDegLon
	})
}

func (s *Sim) Altitude() (float64, error) {
	return s.read("Altitude", func() float64 { return s.alt })
}

func (s *Sim) Heading() (float64, error) {
	return s.read("Heading", func() float64 { return s.heading })
}

func (s *Sim) Pitch() (float64, error) {
	return s.read("Pitch", func() float64 { return s.pitch })
}

func (s *Sim) Roll() (float64, error) {
	return s.read("Roll", func() float64 { return s.roll })
}

func (s *Sim) Velocity() (float64, error) {
	return s.read("Velocity", func() float64 {
		return math.Sqrt(s.vn*s.vn + s.ve*s.ve + s.vz*s.vz)
	})
}

// AdvanceStage ignites the next stage. The first call is ignition.
func (s *Sim) AdvanceStage() error {
	return s.command("AdvanceStage", func() error {
		if s.stage >= s.cfg.Stages {
			return ErrNoStage
		}
		s.stage++
		return nil
	})
}

func (s *Sim) SetThrottle(level float64) error {
	return s.command("SetThrottle", func() error {
		if level < 0 || level > 1 || math.IsNaN(level) {
			return fmt.Errorf("throttle %v out of range [0, 1]", level)
		}
		s.throttle = level
		return nil
	})
}

func (s *Sim) SetAutopilot(engaged bool) error {
	return s.command("SetAutopilot", func() error {
		s.autopilot = engaged
		if engaged {
			s.targetPitch, s.targetHeading = s.pitch, s.heading
		}
		return nil
	})
}

func (s *Sim) SetAutopilotTarget(pitch, heading float64) error {
	return s.command("SetAutopilotTarget", func() error {
		if !s.autopilot {
			return errors.New("autopilot not engaged")
		}
		s.targetPitch, s.targetHeading = pitch, heading
		return nil
	})
}

func (s *Sim) SetAttitudeHold(on bool) error {
	return s.command("SetAttitudeHold", func() error {
		s.attitudeHold = on
		return nil
	})
}

func (s *Sim) SetReactionControl(on bool) error {
	return s.command("SetReactionControl", func() error {
		s.reactionCtrl = on
		return nil
	})
}

// Snapshot is the full simulator state, for logs and tests.
type Snapshot struct {
	Stage        int
	Throttle     float64
	Autopilot    bool
	AttitudeHold bool
	ReactionCtrl bool
	Alt          float64
	VerticalVel  float64
}

func (s *Sim) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return Snapshot{
		Stage:        s.stage,
		Throttle:     s.throttle,
		Autopilot:    s.autopilot,
		AttitudeHold: s.attitudeHold,
		ReactionCtrl: s.reactionCtrl,
		Alt:          s.alt,
		VerticalVel:  s.vz,
	}
}
