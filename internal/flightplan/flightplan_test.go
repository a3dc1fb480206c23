package flightplan

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalPlan() *FlightPlan {
	return &FlightPlan{
		StepCount: 1,
		Steps:     []Step{{Count: 1, Action: Ignite, Trigger: TimeTrigger(0)}},
	}
}

func ascentPlan() *FlightPlan {
	return FromSteps([]Step{
		OtherStep(1, Ignite, TimeTrigger(0)),
		ThrottleStep(1, 1.0, TimeTrigger(0)),
		ReorientStep(1, 0, 80, 90, AltitudeTrigger(1000)),
		OtherStep(1, NextStage, AltitudeTrigger(20000)),
		ThrottleStep(1, 0.0, PositionTrigger(-0.1, -74.5)),
		OtherStep(1, Coast, TimeTrigger(1700000000)),
	})
}

func TestValidateMinimalPlan(t *testing.T) {
	assert.NoError(t, minimalPlan().Validate())
	assert.True(t, IsValid(minimalPlan()))
	assert.True(t, IsValid(ascentPlan()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		plan *FlightPlan
		rule Rule
		step int
	}{
		{"nil plan", nil, RuleEmpty, -1},
		{"empty plan", &FlightPlan{}, RuleEmpty, -1},
		{"zero step count with steps", &FlightPlan{StepCount: 0, Steps: minimalPlan().Steps}, RuleEmpty, -1},
		{"count mismatch", &FlightPlan{StepCount: 2, Steps: minimalPlan().Steps}, RuleStepCountMismatch, -1},
		{"first not ignite", FromSteps([]Step{OtherStep(1, Coast, TimeTrigger(0))}), RuleFirstNotIgnite, 0},
		{"first trigger not time", FromSteps([]Step{OtherStep(1, Ignite, AltitudeTrigger(0))}), RuleFirstNotImmediate, 0},
		{"first trigger time nonzero", FromSteps([]Step{OtherStep(1, Ignite, TimeTrigger(10))}), RuleFirstNotImmediate, 0},
		{"first trigger missing", FromSteps([]Step{{Action: Ignite}}), RuleMissingTrigger, 0},
		{"later trigger missing", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: Coast},
		}), RuleMissingTrigger, 1},
		{"empty trigger", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: Coast, Trigger: &Trigger{}},
		}), RuleAmbiguousTrigger, 1},
		{"two conditions", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: Coast, Trigger: &Trigger{Time: &TimeCondition{}, Altitude: &AltitudeCondition{Alt: 3}}},
		}), RuleAmbiguousTrigger, 1},
		{"reorient without payload", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: Reorient, Trigger: TimeTrigger(0)},
		}), RuleMissingPayload, 1},
		{"throttle above one", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: ThrottleLevel, Trigger: TimeTrigger(0), Throttle: &ThrottleParam{Throttle: 1.5}},
		}), RuleThrottleOutOfRange, 1},
		{"throttle NaN", FromSteps([]Step{
			OtherStep(1, Ignite, TimeTrigger(0)),
			{Action: ThrottleLevel, Trigger: TimeTrigger(0), Throttle: &ThrottleParam{Throttle: math.NaN()}},
		}), RuleThrottleOutOfRange, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.rule, ve.Rule)
			assert.Equal(t, tt.step, ve.Step)
			assert.False(t, IsValid(tt.plan))
		})
	}
}

func TestCheckTime(t *testing.T) {
	assert.False(t, Check(TimeTrigger(10), Reading{Time: 9}))
	assert.True(t, Check(TimeTrigger(10), Reading{Time: 10}))
	assert.True(t, Check(TimeTrigger(10), Reading{Time: 11}))
	assert.True(t, Check(TimeTrigger(0), Reading{}))
}

func TestCheckPosition(t *testing.T) {
	target := PositionTrigger(0, 0)
	assert.True(t, Check(target, Reading{Lat: 9, Lon: 9}))
	assert.True(t, Check(target, Reading{Lat: -10, Lon: 10}))
	assert.False(t, Check(target, Reading{Lat: 11, Lon: 0}))
	assert.False(t, Check(target, Reading{Lat: 0, Lon: -10.5}))
	// Rectangular window: both axes at the edge still pass.
	assert.True(t, Check(target, Reading{Lat: 10, Lon: 10}))
}

func TestCheckAltitude(t *testing.T) {
	target := AltitudeTrigger(1000)
	assert.True(t, Check(target, Reading{Alt: 990}))
	assert.True(t, Check(target, Reading{Alt: 1010}))
	assert.False(t, Check(target, Reading{Alt: 989.9}))
	assert.False(t, Check(target, Reading{Alt: 5000}))
}

func TestCheckContractViolation(t *testing.T) {
	assertViolation := func(t *testing.T, trig *Trigger) {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected panic")
			_, ok := r.(*ContractViolation)
			assert.True(t, ok, "expected *ContractViolation, got %T", r)
		}()
		Check(trig, Reading{})
	}
	assertViolation(t, nil)
	assertViolation(t, &Trigger{})
}

func TestThrottleStepClamps(t *testing.T) {
	assert.Equal(t, 1.0, ThrottleStep(1, 3, TimeTrigger(0)).Throttle.Throttle)
	assert.Equal(t, 0.0, ThrottleStep(1, -0.5, TimeTrigger(0)).Throttle.Throttle)
	assert.Equal(t, 0.25, ThrottleStep(1, 0.25, TimeTrigger(0)).Throttle.Throttle)
}

func TestOtherStepRejectsPayloadActions(t *testing.T) {
	assert.Panics(t, func() { OtherStep(1, Reorient, TimeTrigger(0)) })
	assert.Panics(t, func() { OtherStep(1, ThrottleLevel, TimeTrigger(0)) })
	assert.NotPanics(t, func() { OtherStep(1, NextStage, TimeTrigger(0)) })
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plan.json", "plan.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			want := ascentPlan()
			require.NoError(t, SaveFile(path, want))

			got, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseJSONShape(t *testing.T) {
	p, err := Parse(`{"step_count":1,"steps":[{"count":1,"type":"IGNITE","trigger":{"time":{"seconds":0}}}]}`)
	require.NoError(t, err)
	assert.NoError(t, p.Validate())
	assert.Equal(t, Ignite, p.Steps[0].Action)

	_, err = Parse(`{"step_count":1,"steps":[{"type":"LAUNCH"}]}`)
	assert.Error(t, err)
}

func TestBuiltinPlansAreValid(t *testing.T) {
	assert.NoError(t, Minimal().Validate())
	assert.Equal(t, minimalPlan(), Minimal())

	demo := DemoAscent()
	require.NoError(t, demo.Validate())
	assert.Equal(t, uint32(len(demo.Steps)), demo.StepCount)
	assert.Equal(t, Minimal().Steps[0], demo.Steps[0], "demo ascent opens with the minimal ignite step")
}

func TestCloneIsDeep(t *testing.T) {
	p := ascentPlan()
	cp := p.Clone()
	require.Equal(t, p, cp)

	for i := range p.Steps {
		s, c := p.Steps[i], cp.Steps[i]
		assert.NotSame(t, s.Trigger, c.Trigger, "step %d trigger", i)
		if s.Throttle != nil {
			assert.NotSame(t, s.Throttle, c.Throttle, "step %d throttle", i)
		}
		if s.Reorient != nil {
			assert.NotSame(t, s.Reorient, c.Reorient, "step %d reorient", i)
		}
	}

	p.Steps[2].Trigger.Altitude.Alt = 5
	assert.Equal(t, 1000.0, cp.Steps[2].Trigger.Altitude.Alt)
	assert.Nil(t, (*FlightPlan)(nil).Clone())
}
