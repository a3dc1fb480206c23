// Package planner is the ground side of the link: it accepts avionics
// connections, uploads the flight plan, and republishes everything the
// vehicle sends on a broadcast hub.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"kerbx/internal/broadcast"
	"kerbx/internal/envelope"
	"kerbx/internal/flightplan"
	"kerbx/internal/logger"
)

const DefaultListen = ":51961"

type Config struct {
	Listen string

	// Plan is uploaded to every vehicle that connects. Nil uploads nothing.
	Plan *flightplan.FlightPlan

	// Launch sends a Countdown of Countdown seconds right after the plan.
	Launch    bool
	Countdown uint32

	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Listen:       DefaultListen,
		Countdown:    10,
		WriteTimeout: 5 * time.Second,
	}
}

type Server struct {
	cfg    Config
	ln     net.Listener
	hub    *broadcast.Hub
	logger *logger.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Listen binds cfg.Listen. Call Serve to start accepting.
func Listen(cfg Config, hub *broadcast.Hub, l *logger.Logger) (*Server, error) {
	if cfg.Plan != nil {
		if err := cfg.Plan.Validate(); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	return &Server{
		cfg:    cfg,
		ln:     ln,
		hub:    hub,
		logger: l,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled, then closes every open
// connection and waits for their receive loops to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Infof("Planning server listening on %s", s.ln.Addr())

	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	defer func() {
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr()
	l := s.logger.WithTag(remote.String())
	l.Infof("Avionics connected")

	if err := s.upload(conn); err != nil {
		l.Errorf("Upload failed: %v", err)
		return
	}

	err := RecvAndDecode(ctx, conn, remote, s.hub)
	switch {
	case err == nil:
		l.Infof("Avionics disconnected")
	case ctx.Err() != nil:
	default:
		l.Warnf("Connection lost: %v", err)
	}
}

// upload sends the configured plan and, when launching, the countdown.
func (s *Server) upload(conn net.Conn) error {
	if s.cfg.Plan == nil {
		return nil
	}
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}

	enc := envelope.NewEncoder(conn)
	if err := enc.Encode(envelope.FlightPlan{Plan: *s.cfg.Plan}); err != nil {
		return fmt.Errorf("send flight plan: %w", err)
	}
	s.logger.Infof("Sent %d-step flight plan to %s", s.cfg.Plan.StepCount, conn.RemoteAddr())

	if s.cfg.Launch {
		c := envelope.Countdown{Seconds: s.cfg.Countdown, Time: uint64(time.Now().Unix())}
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("send countdown: %w", err)
		}
		s.logger.Infof("Launch requested, T-%d", s.cfg.Countdown)
	}
	return nil
}

// RecvAndDecode reads frames from r and publishes one packet per frame. A
// malformed frame is published as Empty with the decode error attached and
// reading continues. It returns nil when the peer closes the stream cleanly.
func RecvAndDecode(ctx context.Context, r io.Reader, remote net.Addr, hub *broadcast.Hub) error {
	dec := envelope.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, err := dec.Decode()
		if err != nil {
			var de *envelope.DecodeError
			if errors.As(err, &de) {
				hub.Publish(broadcast.Packet{Envelope: envelope.Empty{}, Err: err, Remote: remote})
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		hub.Publish(broadcast.Packet{Envelope: e, Remote: remote})
	}
}
