// Package conn holds the mutable state kept for one signaling
// connection: its identity, its current room, and its liveness flag. A
// Connection is mutated only by the worker that owns it and by the
// heartbeat supervisor, which is the sole exception allowed to flip the
// liveness flag from another goroutine.
package conn

import (
	"sync"
	"time"

	"signalcore/internal/wire"
)

// State is a coarse label for where a connection sits in its lifecycle.
// CurrentRoomID (empty vs non-empty) distinguishes joined from unjoined
// while Connected; State itself only distinguishes the handshake and
// shutdown edges.
type State int

const (
	StateHandshaking State = iota
	StateConnected
	StateClosing
	StateClosed
)

// Sink is the exclusive outbound delivery mechanism for a connection.
// Other workers deliver to it by enqueueing rather than writing to the
// transport directly, so only the owning connection's writer ever
// touches the wire.
type Sink interface {
	// Enqueue hands f to the connection's own writer. It returns false if
	// the connection's outbound queue is gone (closing/closed) and the
	// frame was dropped.
	Enqueue(f wire.Outbound) bool

	// Close terminates the underlying transport with a WebSocket close
	// code and human-readable reason.
	Close(code int, reason string)
}

// Connection is the mutable per-connection record.
type Connection struct {
	mu sync.Mutex

	clientID string
	userID   string
	name     string
	role     string

	currentRoomID string // "" means unjoined
	state         State

	isAlive     bool
	missedPings int

	lastActivity time.Time

	remoteAddress string
	userAgent     string
	origin        string

	sink Sink
}

// New constructs a Connection in StateHandshaking. The caller transitions
// it to StateConnected once it is registered, just before the initial
// "connected" frame is enqueued.
func New(clientID, userID string, remoteAddress, userAgent, origin string, sink Sink) *Connection {
	return &Connection{
		clientID:      clientID,
		userID:        userID,
		state:         StateHandshaking,
		isAlive:       true,
		lastActivity:  time.Now(),
		remoteAddress: remoteAddress,
		userAgent:     userAgent,
		origin:        origin,
		sink:          sink,
	}
}

func (c *Connection) ClientID() string { return c.clientID }

func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

func (c *Connection) SetIdentity(name, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.role = role
}

// DisplayID is the identifier used to address this connection over the
// wire: userId if present, otherwise clientId. Either form must resolve
// back to this connection so older clients that address peers by
// clientId keep working.
func (c *Connection) DisplayID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID
	}
	return c.clientID
}

func (c *Connection) CurrentRoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoomID
}

func (c *Connection) SetCurrentRoomID(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoomID = roomID
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Touch refreshes lastActivity; called on every inbound frame (pongs do
// not touch it).
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// IsAlive reports the heartbeat liveness flag.
func (c *Connection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAlive
}

// SetAlive sets the liveness flag. The heartbeat supervisor clears it
// when a ping is sent and a pong handler sets it back on receipt.
func (c *Connection) SetAlive(alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isAlive = alive
	if alive {
		c.missedPings = 0
	}
}

// CheckHeartbeat runs one heartbeat tick: if isAlive is true, it is
// cleared and the caller should send a ping; if it is already false (the
// previous ping went unanswered), no new ping is sent and the
// missed-ping counter is incremented instead.
func (c *Connection) CheckHeartbeat(maxMissed int) (shouldPing bool, missed int, exceeded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isAlive {
		c.isAlive = false
		c.missedPings = 0
		return true, 0, false
	}
	c.missedPings++
	return false, c.missedPings, c.missedPings >= maxMissed
}

func (c *Connection) RemoteAddress() string { return c.remoteAddress }
func (c *Connection) UserAgent() string     { return c.userAgent }
func (c *Connection) Origin() string        { return c.origin }

// Send enqueues an outbound frame via the connection's exclusive sink.
func (c *Connection) Send(f wire.Outbound) bool {
	return c.sink.Enqueue(f)
}

// Close terminates the underlying transport.
func (c *Connection) Close(code int, reason string) {
	c.sink.Close(code, reason)
}

// Peer computes the peer descriptor advertised for this connection. It
// is derived fresh from current state rather than stored, so it can
// never drift from the connection it describes.
func (c *Connection) Peer() wire.PeerDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.userID
	if id == "" {
		id = c.clientID
	}
	return wire.PeerDescriptor{
		ID:            id,
		Origin:        c.origin,
		UserAgent:     c.userAgent,
		RemoteAddress: c.remoteAddress,
		RoomID:        c.currentRoomID,
	}
}
