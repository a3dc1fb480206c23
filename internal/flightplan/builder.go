package flightplan

// ThrottleStep builds a THROTTLELEVEL step. Levels outside [0, 1] are clamped.
func ThrottleStep(count uint32, level float64, trigger *Trigger) Step {
	switch {
	case level > 1:
		level = 1
	case level < 0:
		level = 0
	}
	return Step{
		Count:    count,
		Action:   ThrottleLevel,
		Trigger:  trigger,
		Throttle: &ThrottleParam{Throttle: level},
	}
}

// ReorientStep builds a REORIENT step targeting the given attitude in degrees.
func ReorientStep(count uint32, roll, pitch, yaw float64, trigger *Trigger) Step {
	return Step{
		Count:    count,
		Action:   Reorient,
		Trigger:  trigger,
		Reorient: &ReorientParam{Pitch: pitch, Roll: roll, Yaw: yaw},
	}
}

// OtherStep builds one of the payload-free steps (IGNITE, COAST, NEXTSTAGE).
// Passing REORIENT or THROTTLELEVEL is a programming error.
func OtherStep(count uint32, action ActionType, trigger *Trigger) Step {
	switch action {
	case Ignite, Coast, NextStage:
	default:
		panic(&ContractViolation{Op: "other-step", Reason: action.String() + " needs a payload; use ReorientStep or ThrottleStep"})
	}
	return Step{Count: count, Action: action, Trigger: trigger}
}

// TimeTrigger fires once wall-clock time reaches secondsSinceEpoch. A value
// in the past (0 included) fires immediately.
func TimeTrigger(secondsSinceEpoch uint64) *Trigger {
	return &Trigger{Time: &TimeCondition{Seconds: secondsSinceEpoch}}
}

func AltitudeTrigger(alt float64) *Trigger {
	return &Trigger{Altitude: &AltitudeCondition{Alt: alt}}
}

func PositionTrigger(lat, lon float64) *Trigger {
	return &Trigger{Position: &PositionCondition{Lat: lat, Lon: lon}}
}

// FromSteps wraps steps into a plan with a matching step count.
func FromSteps(steps []Step) *FlightPlan {
	return &FlightPlan{StepCount: uint32(len(steps)), Steps: steps}
}

// Minimal is the smallest valid plan: ignite immediately.
func Minimal() *FlightPlan {
	return FromSteps([]Step{OtherStep(1, Ignite, TimeTrigger(0))})
}

// DemoAscent ignites at full throttle, pitches over in two stages on the way
// up, stages at 30 km and coasts once the upper stage reaches 70 km.
func DemoAscent() *FlightPlan {
	return FromSteps([]Step{
		OtherStep(1, Ignite, TimeTrigger(0)),
		ThrottleStep(1, 1.0, TimeTrigger(0)),
		ReorientStep(1, 0, 80, 90, AltitudeTrigger(1000)),
		ReorientStep(1, 0, 45, 90, AltitudeTrigger(10000)),
		OtherStep(1, NextStage, AltitudeTrigger(30000)),
		ThrottleStep(1, 0.0, AltitudeTrigger(70000)),
		OtherStep(1, Coast, AltitudeTrigger(70000)),
	})
}
