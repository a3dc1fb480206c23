package planner

import (
	"context"
	"time"

	"kerbx/internal/broadcast"
	"kerbx/internal/envelope"
	"kerbx/internal/logger"
)

// EnvelopePublisher mirrors envelopes into an external store.
type EnvelopePublisher interface {
	PublishEnvelope(e envelope.Envelope, received time.Time) error
}

// Relay copies every decoded packet from sub to pub. Decode errors are not
// relayed. Publish failures are logged and the relay keeps going.
func Relay(ctx context.Context, sub *broadcast.Subscription, pub EnvelopePublisher, l *logger.Logger) error {
	defer sub.Unsubscribe()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-sub.C():
			if !ok {
				return nil
			}
			if p.Err != nil {
				continue
			}
			if err := pub.PublishEnvelope(p.Envelope, p.Received); err != nil {
				failures++
				// Log the first failure and then every 100th
				if failures%100 == 1 {
					l.Warnf("Relay failed (%d so far): %v", failures, err)
				}
				continue
			}
			if failures > 0 {
				l.Infof("Relay recovered after %d failures", failures)
				failures = 0
			}
		}
	}
}

// LogPackets writes every packet on sub to l. Telemetry goes to debug, decode
// errors to warn.
func LogPackets(ctx context.Context, sub *broadcast.Subscription, l *logger.Logger) error {
	defer func() {
		sub.Unsubscribe()
		if n := sub.Dropped(); n > 0 {
			l.Warnf("Packet log missed %d packets", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-sub.C():
			if !ok {
				return nil
			}
			logPacket(l, p)
		}
	}
}

func logPacket(l *logger.Logger, p broadcast.Packet) {
	if p.Err != nil {
		l.Warnf("Malformed envelope from %v: %v", p.Remote, p.Err)
		return
	}
	switch e := p.Envelope.(type) {
	case envelope.Telemetry:
		l.Debugf("Telemetry from %v: lat=%.4f lon=%.4f alt=%.1f v=%.1f pitch=%.1f", p.Remote, e.Lat, e.Lon, e.Alt, e.Velocity, e.Pitch)
	case envelope.Watchdog:
		if e.Status == envelope.StatusFault {
			l.Errorf("Avionics %v reports fault: %s", p.Remote, e.Message)
		} else {
			l.Debugf("Watchdog from %v", p.Remote)
		}
	case envelope.Countdown:
		l.Infof("Avionics %v at T-%d", p.Remote, e.Seconds)
	case envelope.Empty:
		l.Debugf("Keep-alive from %v", p.Remote)
	default:
		l.Infof("Received %s from %v", p.Envelope.Kind(), p.Remote)
	}
}
