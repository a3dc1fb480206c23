package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/librescoot/librefsm"

	"kerbx/internal/envelope"
	"kerbx/internal/logger"
	"kerbx/internal/messaging"
	"kerbx/internal/types"
)

// Mock Vehicle
type mockVehicle struct {
	mu sync.Mutex

	lat, lon, alt float64

	readErr map[string]error
	cmdErr  map[string]error
	calls   []string
}

func newMockVehicle() *mockVehicle {
	return &mockVehicle{
		readErr: make(map[string]error),
		cmdErr:  make(map[string]error),
	}
}

func (m *mockVehicle) read(name string, get func() float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr[name]; err != nil {
		return 0, err
	}
	return get(), nil
}

func constant(v float64) func() float64 { return func() float64 { return v } }

func (m *mockVehicle) command(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	for prefix, err := range m.cmdErr {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (m *mockVehicle) setPosition(lat, lon, alt float64) {
	m.mu.Lock()
	m.lat, m.lon, m.alt = lat, lon, alt
	m.mu.Unlock()
}

func (m *mockVehicle) failRead(name string, err error) {
	m.mu.Lock()
	m.readErr[name] = err
	m.mu.Unlock()
}

func (m *mockVehicle) failCommand(prefix string, err error) {
	m.mu.Lock()
	m.cmdErr[prefix] = err
	m.mu.Unlock()
}

func (m *mockVehicle) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockVehicle) Latitude() (float64, error) {
	return m.read("latitude", func() float64 { return m.lat })
}
func (m *mockVehicle) Longitude() (float64, error) {
	return m.read("longitude", func() float64 { return m.lon })
}
func (m *mockVehicle) Altitude() (float64, error) {
	return m.read("altitude", func() float64 { return m.alt })
}
func (m *mockVehicle) Heading() (float64, error)  { return m.read("heading", constant(90)) }
func (m *mockVehicle) Pitch() (float64, error)    { return m.read("pitch", constant(90)) }
func (m *mockVehicle) Roll() (float64, error)     { return m.read("roll", constant(0)) }
func (m *mockVehicle) Velocity() (float64, error) { return m.read("velocity", constant(0)) }

func (m *mockVehicle) AdvanceStage() error { return m.command("AdvanceStage") }
func (m *mockVehicle) SetThrottle(level float64) error {
	return m.command(fmt.Sprintf("SetThrottle(%v)", level))
}
func (m *mockVehicle) SetAutopilot(engaged bool) error {
	return m.command(fmt.Sprintf("SetAutopilot(%v)", engaged))
}
func (m *mockVehicle) SetAutopilotTarget(pitch, heading float64) error {
	return m.command(fmt.Sprintf("SetAutopilotTarget(%v,%v)", pitch, heading))
}
func (m *mockVehicle) SetAttitudeHold(on bool) error {
	return m.command(fmt.Sprintf("SetAttitudeHold(%v)", on))
}
func (m *mockVehicle) SetReactionControl(on bool) error {
	return m.command(fmt.Sprintf("SetReactionControl(%v)", on))
}

// Mock GroundLink
type mockLink struct {
	mu      sync.Mutex
	sent    []envelope.Envelope
	sendErr error
	in      chan envelope.Envelope
}

func newMockLink() *mockLink {
	return &mockLink{in: make(chan envelope.Envelope, 8)}
}

func (m *mockLink) Send(e envelope.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, e)
	return nil
}

func (m *mockLink) Receive() <-chan envelope.Envelope { return m.in }
func (m *mockLink) Close() error                      { return nil }

func (m *mockLink) failSends(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *mockLink) Sent() []envelope.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]envelope.Envelope(nil), m.sent...)
}

func (m *mockLink) last() envelope.Envelope {
	sent := m.Sent()
	if len(sent) == 0 {
		return nil
	}
	return sent[len(sent)-1]
}

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks

	publishedStates []types.AvionicsState
	publishedSteps  []uint32
	faults          []string
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) StartListening() error                     { return nil }
func (m *mockMessagingClient) Close() error                              { return nil }

func (m *mockMessagingClient) PublishAvionicsState(state types.AvionicsState, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedStates = append(m.publishedStates, state)
	return nil
}

func (m *mockMessagingClient) PublishStep(step, total uint32, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedSteps = append(m.publishedSteps, step)
	return nil
}

func (m *mockMessagingClient) ReportFault(state types.AvionicsState, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, description)
	return nil
}

func (m *mockMessagingClient) States() []types.AvionicsState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.AvionicsState(nil), m.publishedStates...)
}

func (m *mockMessagingClient) Steps() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.publishedSteps...)
}

func (m *mockMessagingClient) Faults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.faults...)
}

// Mock Indicators
type mockIndicators struct {
	mu     sync.Mutex
	states []types.AvionicsState
}

func (m *mockIndicators) Show(state types.AvionicsState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *mockIndicators) States() []types.AvionicsState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.AvionicsState(nil), m.states...)
}

type testRig struct {
	av         *Avionics
	link       *mockLink
	vehicle    *mockVehicle
	msg        *mockMessagingClient
	indicators *mockIndicators
}

func newTestAvionics(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		link:       newMockLink(),
		vehicle:    newMockVehicle(),
		msg:        &mockMessagingClient{},
		indicators: &mockIndicators{},
	}
	cfg := Config{
		PollInterval:  time.Millisecond,
		Countdown:     2,
		CountdownTick: time.Millisecond,
		IdleWatchdog:  5 * time.Millisecond,
	}
	av, err := NewAvionics(cfg, rig.link, rig.vehicle, rig.msg, rig.indicators, logger.NewLogger(nil, logger.LogLevelNone))
	if err != nil {
		t.Fatalf("NewAvionics: %v", err)
	}
	t.Cleanup(func() { av.Close() })
	rig.av = av
	return rig
}

// setState forces the machine into s, bypassing guards.
func setState(t *testing.T, a *Avionics, s types.AvionicsState) {
	t.Helper()
	if err := a.machine.SetState(librefsm.StateID(s)); err != nil {
		t.Fatalf("SetState(%s): %v", s, err)
	}
	if got := a.State(); got != s {
		t.Fatalf("SetState(%s) left unit in %s", s, got)
	}
}

// expectViolation runs fn and returns the *ContractViolation it panicked
// with, failing the test if it did not.
func expectViolation(t *testing.T, fn func()) (cv *ContractViolation) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("expected contract violation, call succeeded")
			return
		}
		var ok bool
		if cv, ok = r.(*ContractViolation); !ok {
			t.Errorf("expected *ContractViolation, got %T: %v", r, r)
		}
	}()
	fn()
	return nil
}
