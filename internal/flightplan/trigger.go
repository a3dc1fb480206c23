package flightplan

import (
	"fmt"
	"math"
)

// Tolerance windows for Position and Altitude triggers. Latitude and
// longitude are checked independently, so the window is a rectangle rather
// than a radius.
const (
	PositionTolerance = 10.0 // degrees
	AltitudeTolerance = 10.0 // same unit as telemetry altitude
)

// Reading is the vehicle snapshot a trigger is evaluated against.
type Reading struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Time uint64 // seconds since the epoch
}

// ContractViolation is raised (via panic) when the evaluator is handed a
// trigger that validation should have rejected.
type ContractViolation struct {
	Op     string
	Reason string
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", c.Op, c.Reason)
}

// Check reports whether trigger t is satisfied by reading r. It panics with
// a *ContractViolation if t is nil or has no condition set.
func Check(t *Trigger, r Reading) bool {
	if t == nil {
		panic(&ContractViolation{Op: "check", Reason: "nil trigger"})
	}

	switch {
	case t.Time != nil:
		return t.Time.Seconds <= r.Time
	case t.Position != nil:
		return math.Abs(r.Lat-t.Position.Lat) <= PositionTolerance &&
			math.Abs(r.Lon-t.Position.Lon) <= PositionTolerance
	case t.Altitude != nil:
		return math.Abs(r.Alt-t.Altitude.Alt) <= AltitudeTolerance
	default:
		panic(&ContractViolation{Op: "check", Reason: "trigger has no condition set"})
	}
}
