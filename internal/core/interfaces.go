package core

import (
	"kerbx/internal/envelope"
	"kerbx/internal/messaging"
	"kerbx/internal/types"
)

// Vehicle is the sensor and actuator surface of the flight vehicle. Every
// call may fail.
type Vehicle interface {
	Latitude() (float64, error)
	Longitude() (float64, error)
	Altitude() (float64, error)
	Heading() (float64, error)
	Pitch() (float64, error)
	Roll() (float64, error)
	Velocity() (float64, error)

	AdvanceStage() error
	SetThrottle(level float64) error
	SetAutopilot(engaged bool) error
	SetAutopilotTarget(pitch, heading float64) error
	SetAttitudeHold(on bool) error
	SetReactionControl(on bool) error
}

// GroundLink is the bidirectional envelope channel to the flight planner.
// Receive is closed when the link goes down.
type GroundLink interface {
	Send(e envelope.Envelope) error
	Receive() <-chan envelope.Envelope
	Close() error
}

// MessagingClient defines the Redis operations needed by Avionics
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	StartListening() error
	Close() error

	PublishAvionicsState(state types.AvionicsState, message string) error
	PublishStep(step, total uint32, action string) error
	ReportFault(state types.AvionicsState, description string) error
}

// Indicators shows the avionics state on panel lights.
type Indicators interface {
	Show(state types.AvionicsState) error
}
