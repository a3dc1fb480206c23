package planner

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kerbx/internal/broadcast"
	"kerbx/internal/envelope"
	"kerbx/internal/flightplan"
	"kerbx/internal/logger"
)

var quiet = logger.NewLogger(nil, logger.LogLevelNone)

func testPlan() *flightplan.FlightPlan {
	return flightplan.FromSteps([]flightplan.Step{
		flightplan.OtherStep(1, flightplan.Ignite, flightplan.TimeTrigger(0)),
		flightplan.ThrottleStep(1, 1.0, flightplan.TimeTrigger(0)),
	})
}

func next(t *testing.T, sub *broadcast.Subscription) broadcast.Packet {
	t.Helper()
	select {
	case p, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return broadcast.Packet{}
	}
}

func TestRecvAndDecode(t *testing.T) {
	var buf bytes.Buffer
	enc := envelope.NewEncoder(&buf)
	require.NoError(t, enc.Encode(envelope.Watchdog{Time: 1}))
	buf.Write([]byte{2, 0x7F, 0x00}) // unknown kind
	require.NoError(t, enc.Encode(envelope.Empty{}))
	require.NoError(t, enc.Encode(envelope.Telemetry{Alt: 120, Time: 2}))

	hub := broadcast.NewHub()
	sub := hub.Subscribe("test", 8)
	remote := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 4000}

	require.NoError(t, RecvAndDecode(context.Background(), &buf, remote, hub))
	require.Len(t, sub.C(), 4)

	p := <-sub.C()
	assert.Equal(t, envelope.Watchdog{Time: 1}, p.Envelope)
	assert.NoError(t, p.Err)
	assert.Equal(t, remote, p.Remote)

	p = <-sub.C()
	assert.Equal(t, envelope.Empty{}, p.Envelope)
	var de *envelope.DecodeError
	require.ErrorAs(t, p.Err, &de)
	assert.ErrorIs(t, p.Err, envelope.ErrUnknownKind)

	p = <-sub.C()
	assert.Equal(t, envelope.Empty{}, p.Envelope)
	assert.NoError(t, p.Err, "a real keep-alive carries no error")

	p = <-sub.C()
	assert.Equal(t, envelope.Telemetry{Alt: 120, Time: 2}, p.Envelope)
}

func TestRecvAndDecodeTruncatedStream(t *testing.T) {
	hub := broadcast.NewHub()
	err := RecvAndDecode(context.Background(), bytes.NewReader([]byte{10, 1, 2}), nil, hub)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Zero(t, hub.Published())
}

func TestServerUploadsAndRepublishes(t *testing.T) {
	hub := broadcast.NewHub()
	sub := hub.Subscribe("test", 16)

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.Plan = testPlan()
	cfg.Launch = true
	cfg.Countdown = 3

	srv, err := Listen(cfg, hub, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	dec := envelope.NewDecoder(conn)
	e, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, envelope.FlightPlan{Plan: *testPlan()}, e)

	e, err = dec.Decode()
	require.NoError(t, err)
	c, ok := e.(envelope.Countdown)
	require.True(t, ok)
	assert.Equal(t, uint32(3), c.Seconds)

	enc := envelope.NewEncoder(conn)
	require.NoError(t, enc.Encode(envelope.Watchdog{Status: envelope.StatusAckAlive, Time: 5}))
	require.NoError(t, enc.Encode(envelope.Telemetry{Alt: 80, Time: 5}))

	p := next(t, sub)
	assert.Equal(t, envelope.Watchdog{Status: envelope.StatusAckAlive, Time: 5}, p.Envelope)
	assert.Equal(t, conn.LocalAddr().String(), p.Remote.String())
	p = next(t, sub)
	assert.Equal(t, envelope.Telemetry{Alt: 80, Time: 5}, p.Envelope)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestListenRejectsInvalidPlan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.Plan = &flightplan.FlightPlan{}

	_, err := Listen(cfg, broadcast.NewHub(), quiet)
	var ve *flightplan.ValidationError
	assert.ErrorAs(t, err, &ve)
}
