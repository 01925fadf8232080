// Package monitor streams trace events to websocket clients so bus traffic
// can be watched live from outside the process.
package monitor

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cansim/cansim/internal/trace"
)

// Frame is the wire form of one delivery.
type Frame struct {
	Time  string `json:"time"`
	Node  string `json:"node"`
	MsgID uint32 `json:"msgId"`
	DLC   uint32 `json:"dlc"`
	Data  string `json:"data"` // hex-encoded payload
}

// Hub fans trace events out to connected websocket clients. It implements
// trace.Sink. A client that cannot keep up loses events; a client whose
// connection breaks is unregistered. Publishing never blocks the goroutine
// driving the bus.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan Frame]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[chan Frame]struct{}),
	}
}

// Publish implements trace.Sink.
func (h *Hub) Publish(ev trace.Event) {
	f := Frame{
		Time:  ev.Time.Format(time.RFC3339Nano),
		Node:  ev.Node,
		MsgID: ev.MsgID,
		DLC:   ev.DLC,
		Data:  hex.EncodeToString(ev.Data),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default: // slow client: drop the frame, keep the bus moving
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(ch chan Frame) {
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(ch chan Frame) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams frames until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("monitor: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan Frame, 64)
	h.register(ch)
	defer h.unregister(ch)
	slog.Info("monitor: client connected", "remote", conn.RemoteAddr())

	// Reads are discarded; the loop only detects the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("monitor: client disconnected", "remote", conn.RemoteAddr())
			return
		case f := <-ch:
			if err := conn.WriteJSON(f); err != nil {
				slog.Warn("monitor: write failed", "remote", conn.RemoteAddr(), "err", err)
				return
			}
		}
	}
}

// Serve exposes the hub at /watch on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/watch", h)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("monitor: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
