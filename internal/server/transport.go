// Package server wires the connection upgrade path, heartbeat
// supervisor, message dispatcher, signaling relay, and presence
// broadcaster together into the per-connection runtime. transport.go
// holds the WebSocket-specific plumbing: the exclusive-owner outbound
// sink and its write pump (the read pump is in gate.go), with a
// read-goroutine/write-goroutine split so a slow client never
// head-of-line blocks the reader.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalcore/internal/wire"
)

// outboundQueueSize bounds how many frames can be queued for a single
// slow connection before new ones are dropped rather than blocking the
// sender.
const outboundQueueSize = 256

// writeWait bounds how long a single frame write may take.
const writeWait = 10 * time.Second

// transport is the exclusive-owner outbound sink for one connection. It
// implements conn.Sink. Only its own writePump goroutine ever calls
// WriteMessage on the underlying *websocket.Conn.
type transport struct {
	clientID string
	ws       *websocket.Conn
	logger   *slog.Logger

	outbound chan wire.Outbound

	closeOnce sync.Once
	closed    chan struct{}
}

func newTransport(clientID string, ws *websocket.Conn, logger *slog.Logger) *transport {
	return &transport{
		clientID: clientID,
		ws:       ws,
		logger:   logger,
		outbound: make(chan wire.Outbound, outboundQueueSize),
		closed:   make(chan struct{}),
	}
}

// Enqueue implements conn.Sink. It never blocks: a full queue means the
// peer is too slow to keep up, and the frame is dropped and logged
// rather than stalling the sender or the broadcaster.
func (t *transport) Enqueue(f wire.Outbound) bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	select {
	case t.outbound <- f:
		return true
	case <-t.closed:
		return false
	default:
		t.logger.Warn("dropping frame for slow connection", slog.String("clientId", t.clientID), slog.String("type", f.Type))
		return false
	}
}

// Close implements conn.Sink. It is safe to call more than once and from
// any goroutine; only the first call has effect.
func (t *transport) Close(code int, reason string) {
	t.closeOnce.Do(func() {
		close(t.closed)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = t.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = t.ws.Close()
	})
}

func (t *transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// writePump drains the outbound queue and serializes every frame to the
// wire. It returns when the transport is closed or a write fails.
func (t *transport) writePump() {
	for {
		select {
		case f, ok := <-t.outbound:
			if !ok {
				return
			}
			if t.isClosed() {
				return
			}
			f.Timestamp = time.Now().UnixMilli()
			b, err := json.Marshal(f)
			if err != nil {
				t.logger.Error("marshal outbound frame", slog.String("clientId", t.clientID), slog.Any("error", err))
				continue
			}
			_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				t.logger.Debug("write failed, closing", slog.String("clientId", t.clientID), slog.Any("error", err))
				return
			}
		case <-t.closed:
			return
		}
	}
}

// sendPing writes a WebSocket ping control frame directly, bypassing the
// JSON outbound queue since pings are transport-level, not wire frames.
func (t *transport) sendPing() error {
	return t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
