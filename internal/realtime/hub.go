package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub owns every websocket write. Each registered connection gets a
// dedicated writer goroutine fed through a latest-wins channel, so no two
// goroutines ever write the same connection. A client that fails a write
// is closed and its read pump tears the stream down.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan any
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]chan any)}
}

// Register starts the writer for conn. The returned release func stops the
// writer and closes the connection; calling it twice is safe.
func (h *Hub) Register(conn *websocket.Conn) func() {
	out := make(chan any, 1)
	h.mu.Lock()
	h.conns[conn] = out
	h.mu.Unlock()

	go func() {
		for v := range out {
			if err := conn.WriteJSON(v); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	return func() {
		h.mu.Lock()
		if ch, ok := h.conns[conn]; ok {
			delete(h.conns, conn)
			close(ch)
		}
		h.mu.Unlock()
		_ = conn.Close()
	}
}

// Send queues v for conn, keeping only the newest value when the writer
// lags. Sending to an unregistered connection is a no-op.
func (h *Hub) Send(conn *websocket.Conn, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.conns[conn]
	if !ok {
		return
	}
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
