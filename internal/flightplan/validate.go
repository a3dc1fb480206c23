package flightplan

import (
	"fmt"
	"math"
)

// Rule names the structural check a plan failed.
type Rule string

const (
	RuleEmpty              Rule = "empty-plan"
	RuleStepCountMismatch  Rule = "step-count-mismatch"
	RuleFirstNotIgnite     Rule = "first-step-not-ignite"
	RuleFirstNotImmediate  Rule = "first-trigger-not-time-zero"
	RuleMissingTrigger     Rule = "missing-trigger"
	RuleAmbiguousTrigger   Rule = "trigger-not-single-condition"
	RuleMissingPayload     Rule = "missing-action-payload"
	RuleThrottleOutOfRange Rule = "throttle-out-of-range"
)

type ValidationError struct {
	Rule   Rule
	Step   int // -1 when the rule concerns the whole plan
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("invalid flight plan: %s: %s", e.Rule, e.Detail)
	}
	return fmt.Sprintf("invalid flight plan: step %d: %s: %s", e.Step, e.Rule, e.Detail)
}

// Validate checks that the plan is structurally well formed. It does not
// check that actions are feasible for the vehicle's configuration (e.g. that
// an IGNITE maps to an actual engine); that is a known gap.
func (p *FlightPlan) Validate() error {
	if p == nil || p.StepCount == 0 || len(p.Steps) == 0 {
		return &ValidationError{Rule: RuleEmpty, Step: -1, Detail: "plan has no steps"}
	}
	if int(p.StepCount) != len(p.Steps) {
		return &ValidationError{Rule: RuleStepCountMismatch, Step: -1,
			Detail: fmt.Sprintf("step_count %d but %d steps", p.StepCount, len(p.Steps))}
	}
	if p.Steps[0].Action != Ignite {
		return &ValidationError{Rule: RuleFirstNotIgnite, Step: 0,
			Detail: fmt.Sprintf("got %s", p.Steps[0].Action)}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Trigger == nil {
			return &ValidationError{Rule: RuleMissingTrigger, Step: i,
				Detail: "every step needs a trigger; use time(0) to run unconditionally"}
		}
		if n := s.Trigger.conditions(); n != 1 {
			return &ValidationError{Rule: RuleAmbiguousTrigger, Step: i,
				Detail: fmt.Sprintf("%d conditions set", n)}
		}
		if i == 0 && (s.Trigger.Time == nil || s.Trigger.Time.Seconds != 0) {
			return &ValidationError{Rule: RuleFirstNotImmediate, Step: 0,
				Detail: fmt.Sprintf("got %s", s.Trigger)}
		}

		switch s.Action {
		case Reorient:
			if s.Reorient == nil {
				return &ValidationError{Rule: RuleMissingPayload, Step: i, Detail: "REORIENT without pitch/roll/yaw"}
			}
		case ThrottleLevel:
			if s.Throttle == nil {
				return &ValidationError{Rule: RuleMissingPayload, Step: i, Detail: "THROTTLELEVEL without level"}
			}
			if level := s.Throttle.Throttle; math.IsNaN(level) || level < 0 || level > 1 {
				return &ValidationError{Rule: RuleThrottleOutOfRange, Step: i,
					Detail: fmt.Sprintf("%g not in [0, 1]", s.Throttle.Throttle)}
			}
		case Ignite, Coast, NextStage:
		default:
			return &ValidationError{Rule: RuleMissingPayload, Step: i, Detail: fmt.Sprintf("unknown action %s", s.Action)}
		}
	}
	return nil
}

func IsValid(p *FlightPlan) bool {
	return p.Validate() == nil
}
