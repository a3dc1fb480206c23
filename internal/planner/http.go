package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"kerbx/internal/broadcast"
	"kerbx/internal/envelope"
	"kerbx/internal/logger"
)

// Latest is the newest telemetry and watchdog seen from any vehicle.
type Latest struct {
	Telemetry    *envelope.Telemetry `json:"telemetry,omitempty"`
	Watchdog     *envelope.Watchdog  `json:"watchdog,omitempty"`
	LastSeen     time.Time           `json:"last_seen,omitempty"`
	Packets      uint64              `json:"packets"`
	DecodeErrors uint64              `json:"decode_errors"`
}

// Observer serves the hub over HTTP for displays that do not speak the
// envelope protocol.
type Observer struct {
	hub    *broadcast.Hub
	buffer int
	logger *logger.Logger
	mux    *http.ServeMux

	mu     sync.RWMutex
	latest Latest
}

func NewObserver(hub *broadcast.Hub, buffer int, l *logger.Logger) *Observer {
	o := &Observer{hub: hub, buffer: buffer, logger: l, mux: http.NewServeMux()}
	o.routes()
	return o
}

func (o *Observer) Handler() http.Handler { return o.mux }

func (o *Observer) routes() {
	o.mux.HandleFunc("/health", o.health)
	o.mux.HandleFunc("/latest", o.latestHandler)
	o.mux.HandleFunc("/stream", o.streamSSE)
}

// Track keeps Latest current from sub until ctx ends or the hub closes.
func (o *Observer) Track(ctx context.Context, sub *broadcast.Subscription) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-sub.C():
			if !ok {
				return nil
			}
			o.record(p)
		}
	}
}

func (o *Observer) record(p broadcast.Packet) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.latest.Packets++
	o.latest.LastSeen = p.Received
	if p.Err != nil {
		o.latest.DecodeErrors++
		return
	}
	switch e := p.Envelope.(type) {
	case envelope.Telemetry:
		o.latest.Telemetry = &e
	case envelope.Watchdog:
		o.latest.Watchdog = &e
	}
}

func (o *Observer) Latest() Latest {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

func (o *Observer) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (o *Observer) latestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, o.Latest())
}

// streamEvent is one SSE data payload.
type streamEvent struct {
	Remote   string            `json:"remote,omitempty"`
	Received time.Time         `json:"received"`
	Envelope envelope.Envelope `json:"envelope,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (o *Observer) streamSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := o.hub.Subscribe("sse "+r.RemoteAddr, o.buffer)
	defer func() {
		sub.Unsubscribe()
		if n := sub.Dropped(); n > 0 {
			o.logger.Warnf("SSE client %s missed %d packets", r.RemoteAddr, n)
		}
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-sub.C():
			if !ok {
				return
			}
			ev := streamEvent{Received: p.Received, Envelope: p.Envelope}
			if p.Remote != nil {
				ev.Remote = p.Remote.String()
			}
			name := p.Envelope.Kind().String()
			if p.Err != nil {
				ev.Error = p.Err.Error()
				name = "decode-error"
			}
			b, err := json.Marshal(ev)
			if err != nil {
				o.logger.Warnf("Skipping %s event for SSE client %s: %v", name, r.RemoteAddr, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", name)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
