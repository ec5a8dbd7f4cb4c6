package server

import (
	"signalcore/internal/room"
	"signalcore/internal/wire"
)

// broadcastPresence takes one membership snapshot of r (after the
// caller's registry mutation has returned) and sends a peers-updated
// frame built from it to every member in that snapshot. No frame is sent for an empty room — the
// registry already prunes those, so Snapshot naturally returns nothing
// to iterate.
func (rt *Runtime) broadcastPresence(r *room.Room) {
	members := r.Snapshot()
	if len(members) == 0 {
		return
	}
	for _, m := range members {
		payload := room.PeersPayload(members, m.ClientID())
		m.Send(wire.Outbound{Type: wire.TypePeersUpdated, From: wire.FromServer, Payload: payload})
	}
}
