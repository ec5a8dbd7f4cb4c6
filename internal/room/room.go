// Package room owns the room registry and each room's shared document:
// a connection belongs to at most one room's membership set at a time,
// empty rooms are removed, and a room's membership snapshot taken for a
// broadcast is always consistent with the mutation that produced it.
package room

import (
	"sync"

	"signalcore/internal/conn"
	"signalcore/internal/wire"
)

// Room is the mutable per-room record. version and text are guarded by
// their own mutex, independent of the registry's membership lock, so
// document updates in one room never block membership mutation in
// another.
type Room struct {
	id string

	docMu   sync.Mutex
	version int64
	text    string

	membersMu sync.RWMutex
	members   map[string]*conn.Connection
}

func newRoom(id string) *Room {
	return &Room{id: id, members: make(map[string]*conn.Connection)}
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// Snapshot returns a stable copy of the current membership, safe to use
// for broadcast after the registry lock spanning the mutation has been
// released.
func (r *Room) Snapshot() []*conn.Connection {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	out := make([]*conn.Connection, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

func (r *Room) size() int {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	return len(r.members)
}

func (r *Room) add(c *conn.Connection) {
	r.membersMu.Lock()
	defer r.membersMu.Unlock()
	r.members[c.ClientID()] = c
}

func (r *Room) remove(clientID string) {
	r.membersMu.Lock()
	defer r.membersMu.Unlock()
	delete(r.members, clientID)
}

func (r *Room) find(id string) (*conn.Connection, bool) {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	for _, c := range r.members {
		if c.UserID() == id {
			return c, true
		}
	}
	for _, c := range r.members {
		if c.ClientID() == id {
			return c, true
		}
	}
	return nil, false
}

// Doc returns the current document state.
func (r *Room) Doc() (version int64, text string) {
	r.docMu.Lock()
	defer r.docMu.Unlock()
	return r.version, r.text
}

// ApplyUpdate performs an optimistic-concurrency document update: if
// baseVersion is nil or matches the current version, the update is
// accepted, version is incremented by exactly one, and text is replaced.
// version and text read-and-write atomically with respect to other
// ApplyUpdate calls on this room; cross-room updates proceed
// independently since each room has its own lock.
func (r *Room) ApplyUpdate(text string, baseVersion *int64) (accepted bool, version int64, current string) {
	r.docMu.Lock()
	defer r.docMu.Unlock()
	if baseVersion != nil && *baseVersion != r.version {
		return false, r.version, r.text
	}
	r.version++
	r.text = text
	return true, r.version, r.text
}

// PeersPayload builds the peers-updated payload for recipient: the full
// peer list (including recipient), total = len(peers), count = peers
// without the recipient.
func PeersPayload(members []*conn.Connection, recipientClientID string) wire.PeersUpdatedPayload {
	peers := make([]wire.PeerDescriptor, 0, len(members))
	count := 0
	for _, c := range members {
		peers = append(peers, c.Peer())
		if c.ClientID() != recipientClientID {
			count++
		}
	}
	return wire.PeersUpdatedPayload{Peers: peers, Total: len(peers), Count: count}
}
