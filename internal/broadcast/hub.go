// Package broadcast fans decoded envelopes out to any number of independent
// subscribers without ever blocking the producer.
package broadcast

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	"kerbx/internal/envelope"
)

// Packet is one received frame. When the frame failed to decode, Envelope is
// envelope.Empty{} and Err says why.
type Packet struct {
	Envelope envelope.Envelope
	Err      error
	Remote   net.Addr
	Received time.Time
}

const DefaultBuffer = 64

type Hub struct {
	mu     deadlock.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives every packet published after it was created. A
// subscriber that falls more than its buffer behind loses the newest packets
// and the loss is counted.
type Subscription struct {
	Name string

	hub     *Hub
	ch      chan Packet
	dropped atomic.Uint64
	done    bool
}

// Subscribe registers a new subscriber. buffer <= 0 selects DefaultBuffer.
// Subscribing to a closed hub returns a subscription whose channel is
// already closed.
func (h *Hub) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{Name: name, hub: h, ch: make(chan Packet, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.done = true
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (s *Subscription) C() <-chan Packet { return s.ch }

func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the subscriber and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(h.subs, s)
	close(s.ch)
}

// Publish offers p to every current subscriber and returns immediately.
func (h *Hub) Publish(p Packet) {
	if p.Envelope == nil {
		p.Envelope = envelope.Empty{}
	}
	if p.Received.IsZero() {
		p.Received = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.published.Add(1)
	for s := range h.subs {
		select {
		case s.ch <- p:
		default:
			s.dropped.Add(1)
		}
	}
}

func (h *Hub) Published() uint64 { return h.published.Load() }

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.done = true
		close(s.ch)
	}
	h.subs = nil
}
