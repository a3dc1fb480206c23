package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kerbx/internal/broadcast"
	"kerbx/internal/envelope"
)

type mockPublisher struct {
	mu    sync.Mutex
	got   []envelope.Envelope
	calls int
	fail  bool
}

func (m *mockPublisher) PublishEnvelope(e envelope.Envelope, received time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return errors.New("redis down")
	}
	m.got = append(m.got, e)
	return nil
}

func (m *mockPublisher) Got() []envelope.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]envelope.Envelope(nil), m.got...)
}

func (m *mockPublisher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockPublisher) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func TestRelaySkipsDecodeErrors(t *testing.T) {
	hub := broadcast.NewHub()
	pub := &mockPublisher{}
	sub := hub.Subscribe("relay", 16)

	done := make(chan error, 1)
	go func() { done <- Relay(context.Background(), sub, pub, quiet) }()

	hub.Publish(broadcast.Packet{Envelope: envelope.Watchdog{Time: 1}})
	hub.Publish(broadcast.Packet{Envelope: envelope.Empty{}, Err: errors.New("bad frame")})
	hub.Publish(broadcast.Packet{Envelope: envelope.Empty{}})
	hub.Publish(broadcast.Packet{Envelope: envelope.Telemetry{Alt: 3}})

	require.Eventually(t, func() bool { return len(pub.Got()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []envelope.Envelope{
		envelope.Watchdog{Time: 1},
		envelope.Empty{},
		envelope.Telemetry{Alt: 3},
	}, pub.Got())

	hub.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Relay did not stop when the hub closed")
	}
}

func TestRelayKeepsGoingAfterFailures(t *testing.T) {
	hub := broadcast.NewHub()
	pub := &mockPublisher{fail: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Relay(ctx, hub.Subscribe("relay", 16), pub, quiet) }()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	hub.Publish(broadcast.Packet{Envelope: envelope.Countdown{Seconds: 1}})
	require.Eventually(t, func() bool { return pub.Calls() == 1 }, time.Second, time.Millisecond)
	pub.setFail(false)
	hub.Publish(broadcast.Packet{Envelope: envelope.Countdown{Seconds: 0}})

	require.Eventually(t, func() bool { return len(pub.Got()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, envelope.Countdown{Seconds: 0}, pub.Got()[0])

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, hub.Subscribers(), "relay unsubscribes on exit")
}

func TestLogPacketsDrains(t *testing.T) {
	hub := broadcast.NewHub()
	sub := hub.Subscribe("log", 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- LogPackets(ctx, sub, quiet) }()

	for i := 0; i < 100; i++ {
		hub.Publish(broadcast.Packet{Envelope: envelope.Watchdog{Status: envelope.StatusFault, Message: "x"}})
	}
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, hub.Subscribers())
}
