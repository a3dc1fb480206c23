// Package flightplan holds the flight plan model, its validator, the trigger
// evaluator and the JSON persistence format.
package flightplan

import "fmt"

type ActionType int

const (
	Ignite ActionType = iota
	Reorient
	ThrottleLevel
	Coast
	NextStage
)

var actionNames = map[ActionType]string{
	Ignite:        "IGNITE",
	Reorient:      "REORIENT",
	ThrottleLevel: "THROTTLELEVEL",
	Coast:         "COAST",
	NextStage:     "NEXTSTAGE",
}

func (a ActionType) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("ActionType(%d)", int(a))
}

func (a ActionType) MarshalText() ([]byte, error) {
	s, ok := actionNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown action type %d", int(a))
	}
	return []byte(s), nil
}

func (a *ActionType) UnmarshalText(b []byte) error {
	for k, v := range actionNames {
		if v == string(b) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown action type %q", string(b))
}

// FlightPlan is the ordered list of steps uploaded to the vehicle.
// StepCount must equal len(Steps).
type FlightPlan struct {
	StepCount uint32 `json:"step_count" msgpack:"step_count"`
	Steps     []Step `json:"steps" msgpack:"steps"`
}

// Clone returns a deep copy of p that shares no pointers with it.
func (p *FlightPlan) Clone() *FlightPlan {
	if p == nil {
		return nil
	}
	cp := &FlightPlan{StepCount: p.StepCount, Steps: make([]Step, len(p.Steps))}
	for i, s := range p.Steps {
		if s.Trigger != nil {
			t := Trigger{}
			if s.Trigger.Time != nil {
				c := *s.Trigger.Time
				t.Time = &c
			}
			if s.Trigger.Position != nil {
				c := *s.Trigger.Position
				t.Position = &c
			}
			if s.Trigger.Altitude != nil {
				c := *s.Trigger.Altitude
				t.Altitude = &c
			}
			s.Trigger = &t
		}
		if s.Reorient != nil {
			r := *s.Reorient
			s.Reorient = &r
		}
		if s.Throttle != nil {
			th := *s.Throttle
			s.Throttle = &th
		}
		cp.Steps[i] = s
	}
	return cp
}

// Step is one action plus the trigger that must hold before it runs. Only the
// payload matching Action is populated.
type Step struct {
	Count    uint32         `json:"count" msgpack:"count"`
	Action   ActionType     `json:"type" msgpack:"type"`
	Trigger  *Trigger       `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
	Reorient *ReorientParam `json:"reorient,omitempty" msgpack:"reorient,omitempty"`
	Throttle *ThrottleParam `json:"throttle,omitempty" msgpack:"throttle,omitempty"`
}

type ReorientParam struct {
	Pitch float64 `json:"pitch" msgpack:"pitch"`
	Roll  float64 `json:"roll" msgpack:"roll"`
	Yaw   float64 `json:"yaw" msgpack:"yaw"`
}

// ThrottleParam is a throttle level in [0, 1].
type ThrottleParam struct {
	Throttle float64 `json:"throttle" msgpack:"throttle"`
}

// Trigger gates a step. Exactly one condition is set.
type Trigger struct {
	Time     *TimeCondition     `json:"time,omitempty" msgpack:"time,omitempty"`
	Position *PositionCondition `json:"position,omitempty" msgpack:"position,omitempty"`
	Altitude *AltitudeCondition `json:"altitude,omitempty" msgpack:"altitude,omitempty"`
}

// TimeCondition fires once wall-clock time reaches Seconds since the epoch.
type TimeCondition struct {
	Seconds uint64 `json:"seconds" msgpack:"seconds"`
}

type PositionCondition struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
}

type AltitudeCondition struct {
	Alt float64 `json:"alt" msgpack:"alt"`
}

func (t *Trigger) conditions() int {
	n := 0
	if t.Time != nil {
		n++
	}
	if t.Position != nil {
		n++
	}
	if t.Altitude != nil {
		n++
	}
	return n
}

func (t *Trigger) String() string {
	switch {
	case t == nil:
		return "none"
	case t.Time != nil:
		return fmt.Sprintf("time(%d)", t.Time.Seconds)
	case t.Position != nil:
		return fmt.Sprintf("position(%.4f, %.4f)", t.Position.Lat, t.Position.Lon)
	case t.Altitude != nil:
		return fmt.Sprintf("altitude(%.1f)", t.Altitude.Alt)
	default:
		return "empty"
	}
}
