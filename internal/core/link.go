package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"kerbx/internal/envelope"
	"kerbx/internal/logger"
)

const (
	linkInboxSize    = 32
	linkWriteTimeout = 2 * time.Second
)

// TCPLink carries envelopes to and from the flight planner over one TCP
// connection. Writes happen on the caller's goroutine; a reader goroutine
// feeds Receive.
type TCPLink struct {
	conn   net.Conn
	enc    *envelope.Encoder
	logger *logger.Logger

	inbox     chan envelope.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// DialLink connects to the planner at addr.
func DialLink(ctx context.Context, addr string, l *logger.Logger) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to flight planner at %s: %w", addr, err)
	}
	if err := tuneConn(conn, linkWriteTimeout); err != nil {
		l.Warnf("Failed to tune ground link socket: %v", err)
	}
	l.Infof("Connected to flight planner at %s", conn.RemoteAddr())
	return NewLink(conn, l), nil
}

func NewLink(conn net.Conn, l *logger.Logger) *TCPLink {
	link := &TCPLink{
		conn:   conn,
		enc:    envelope.NewEncoder(conn),
		logger: l,
		inbox:  make(chan envelope.Envelope, linkInboxSize),
		done:   make(chan struct{}),
	}
	go link.readLoop()
	return link
}

func (t *TCPLink) Send(e envelope.Envelope) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(linkWriteTimeout)); err != nil {
		return err
	}
	return t.enc.Encode(e)
}

func (t *TCPLink) Receive() <-chan envelope.Envelope { return t.inbox }

func (t *TCPLink) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *TCPLink) readLoop() {
	defer close(t.inbox)

	dec := envelope.NewDecoder(t.conn)
	for {
		e, err := dec.Decode()
		if err != nil {
			var de *envelope.DecodeError
			if errors.As(err, &de) {
				t.logger.Warnf("Dropping malformed envelope from planner: %v", err)
				continue
			}
			select {
			case <-t.done:
			default:
				if errors.Is(err, io.EOF) {
					t.logger.Infof("Flight planner closed the link")
				} else {
					t.logger.Warnf("Ground link read failed: %v", err)
				}
			}
			return
		}

		select {
		case t.inbox <- e:
		case <-t.done:
			return
		}
	}
}
