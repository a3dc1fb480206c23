// Package envelope defines the tagged wire message exchanged between the
// avionics unit and the flight planner, and its length-delimited codec.
package envelope

import (
	"fmt"

	"kerbx/internal/flightplan"
)

// Kind is the explicit tag carried in front of every payload.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindWatchdog
	KindTelemetry
	KindFlightPlan
	KindCountdown
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindWatchdog:
		return "watchdog"
	case KindTelemetry:
		return "telemetry"
	case KindFlightPlan:
		return "flightplan"
	case KindCountdown:
		return "countdown"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Envelope is one of Empty, Watchdog, Telemetry, FlightPlan or Countdown.
type Envelope interface {
	Kind() Kind
}

// Empty is a keep-alive with no payload.
type Empty struct{}

type WatchdogStatus uint8

const (
	StatusAckAlive WatchdogStatus = iota
	StatusFault
)

func (s WatchdogStatus) String() string {
	if s == StatusFault {
		return "fault"
	}
	return "ack-alive"
}

// Watchdog proves the control loop is live. Message carries the last error
// when Status is StatusFault.
type Watchdog struct {
	Status  WatchdogStatus `json:"status" msgpack:"status"`
	Time    uint64         `json:"time" msgpack:"time"`
	Message string         `json:"message,omitempty" msgpack:"message"`
}

// Telemetry is a snapshot of vehicle position, attitude and speed. Angles are
// in degrees, velocity in m/s.
type Telemetry struct {
	Lat      float64 `json:"lat" msgpack:"lat"`
	Lon      float64 `json:"lon" msgpack:"lon"`
	Alt      float64 `json:"alt" msgpack:"alt"`
	Yaw      float64 `json:"yaw" msgpack:"yaw"`
	Pitch    float64 `json:"pitch" msgpack:"pitch"`
	Roll     float64 `json:"roll" msgpack:"roll"`
	Velocity float64 `json:"velocity" msgpack:"velocity"`
	Time     uint64  `json:"time" msgpack:"time"`
}

type FlightPlan struct {
	Plan flightplan.FlightPlan `json:"plan" msgpack:"plan"`
}

// Countdown carries the remaining T-minus seconds. Sent by the ground it
// requests launch with that countdown; sent by the vehicle it reports
// progress.
type Countdown struct {
	Seconds uint32 `json:"seconds" msgpack:"seconds"`
	Time    uint64 `json:"time" msgpack:"time"`
}

func (Empty) Kind() Kind      { return KindEmpty }
func (Watchdog) Kind() Kind   { return KindWatchdog }
func (Telemetry) Kind() Kind  { return KindTelemetry }
func (FlightPlan) Kind() Kind { return KindFlightPlan }
func (Countdown) Kind() Kind  { return KindCountdown }
