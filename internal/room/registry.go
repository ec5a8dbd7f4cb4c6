package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"signalcore/internal/conn"
)

// Registry is the addressable room directory: activeConnections plus
// roomId → Room, with thread-safe mutators.
//
// A single mutex spans both activeConnections and the rooms map, so each
// membership mutation is applied as one step. Mutators return the
// affected rooms; the broadcast snapshot is taken afterwards from the
// room's own member lock (Room.Snapshot), and I/O (writing frames)
// happens after the registry lock is released.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*conn.Connection
	rooms       map[string]*Room

	logger *slog.Logger
}

// New constructs an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connections: make(map[string]*conn.Connection),
		rooms:       make(map[string]*Room),
		logger:      logger,
	}
}

// Register adds c to activeConnections, unjoined. Joining is never
// implicit from registration alone.
func (reg *Registry) Register(c *conn.Connection) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.connections[c.ClientID()] = c
}

// Lookup returns the connection with the given clientId, if active.
func (reg *Registry) Lookup(clientID string) (*conn.Connection, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	c, ok := reg.connections[clientID]
	return c, ok
}

// Count returns the number of active connections.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.connections)
}

// Snapshot returns every active connection, for shutdown broadcast.
func (reg *Registry) Snapshot() []*conn.Connection {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*conn.Connection, 0, len(reg.connections))
	for _, c := range reg.connections {
		out = append(out, c)
	}
	return out
}

// Join moves c into roomID, creating the room if it does not exist, and
// implicitly leaves c's prior room first — a connection belongs to at
// most one room's membership set at a time. It returns the prior room
// (nil if none) and the joined room, both already updated, for the
// caller to broadcast presence against outside the lock.
func (reg *Registry) Join(c *conn.Connection, roomID string) (prior *Room, joined *Room, err error) {
	if roomID == "" {
		return nil, nil, fmt.Errorf("join requires roomId")
	}
	if len(roomID) > 256 {
		return nil, nil, fmt.Errorf("roomId exceeds 256 characters")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if old := c.CurrentRoomID(); old != "" && old != roomID {
		if r, ok := reg.rooms[old]; ok {
			r.remove(c.ClientID())
			prior = r
			reg.pruneIfEmptyLocked(r)
		}
	} else if old == roomID {
		// Re-joining the same room is a no-op beyond the state already
		// matching; still return joined for the caller's presence emit.
		joined = reg.rooms[roomID]
		if joined != nil {
			return nil, joined, nil
		}
	}

	r, ok := reg.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		reg.rooms[roomID] = r
	}
	r.add(c)
	c.SetCurrentRoomID(roomID)
	return prior, r, nil
}

// Leave removes c from its current room, if any. It returns the room c
// left (nil if it was unjoined) for the caller to broadcast presence
// against.
func (reg *Registry) Leave(c *conn.Connection) (left *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID := c.CurrentRoomID()
	if roomID == "" {
		return nil
	}
	r, ok := reg.rooms[roomID]
	if !ok {
		c.SetCurrentRoomID("")
		return nil
	}
	r.remove(c.ClientID())
	c.SetCurrentRoomID("")
	reg.pruneIfEmptyLocked(r)
	return r
}

// Unregister removes c from activeConnections and, if it was joined,
// from its room — membership cleanup happens before the caller notifies
// peers. It returns the room c was in, if any.
func (reg *Registry) Unregister(clientID string) (left *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	c, ok := reg.connections[clientID]
	if !ok {
		return nil
	}
	delete(reg.connections, clientID)

	roomID := c.CurrentRoomID()
	if roomID == "" {
		return nil
	}
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	r.remove(clientID)
	c.SetCurrentRoomID("")
	reg.pruneIfEmptyLocked(r)
	return r
}

// pruneIfEmptyLocked removes r from the registry if it has no members.
// The room's document is lost along with it. Callers must hold reg.mu.
func (reg *Registry) pruneIfEmptyLocked(r *Room) {
	if r.size() == 0 {
		delete(reg.rooms, r.id)
	}
}

// RoomByID returns the room, if it currently exists.
func (reg *Registry) RoomByID(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// FindInRoom resolves id, checked against userId first and then
// clientId, among roomID's current members.
func (reg *Registry) FindInRoom(roomID, id string) (*conn.Connection, bool) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.find(id)
}

// FindAny resolves id against every active connection, userId first then
// clientId, as a registry-wide fallback when the target isn't in the
// sender's own room.
func (reg *Registry) FindAny(id string) (*conn.Connection, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, c := range reg.connections {
		if c.UserID() == id {
			return c, true
		}
	}
	for _, c := range reg.connections {
		if c.ClientID() == id {
			return c, true
		}
	}
	return nil, false
}

// Shutdown closes every active connection with close code 1001. It does
// not wait for transports to finish closing; the caller enforces the
// drain timeout via ctx.
func (reg *Registry) Shutdown(ctx context.Context) {
	for _, c := range reg.Snapshot() {
		select {
		case <-ctx.Done():
			return
		default:
			c.Close(1001, "Server shutting down")
		}
	}
}
