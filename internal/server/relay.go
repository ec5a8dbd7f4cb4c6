package server

import (
	"encoding/json"

	"signalcore/internal/conn"
	"signalcore/internal/wire"
)

// handleSignal relays offer, answer, and ice-candidate (and its "ice"
// alias) frames. The frame is stamped with the sender's display id, then
// delivered directly to a resolved target or broadcast to the sender's
// room.
func (rt *Runtime) handleSignal(c *conn.Connection, env wire.Envelope) {
	var sf wire.SignalFrame
	if err := json.Unmarshal(env.Raw, &sf); err != nil {
		c.Send(errorFrame(wire.ReasonInvalidMessage, err.Error()))
		return
	}

	outType := env.Type
	if outType == wire.TypeICE {
		outType = wire.TypeICECandidate
	}

	payload := signalPayload(sf)
	from := c.DisplayID()

	frame := wire.Outbound{
		Type:    outType,
		From:    from,
		To:      sf.To,
		Payload: payload,
	}

	if sf.To == "" {
		rt.broadcastToRoom(c, frame)
		return
	}

	roomID := c.CurrentRoomID()

	// Lookup order: sender's room first, then every active connection;
	// userId is checked before clientId at each scope.
	var target *conn.Connection
	var found bool
	if roomID != "" {
		target, found = rt.Registry.FindInRoom(roomID, sf.To)
	}
	if !found {
		target, found = rt.Registry.FindAny(sf.To)
	}

	if found {
		target.Send(frame)
		return
	}

	// No unique open target: fall back to broadcasting to the sender's
	// room, excluding the sender.
	rt.broadcastToRoom(c, frame)
}

func (rt *Runtime) broadcastToRoom(c *conn.Connection, frame wire.Outbound) {
	roomID := c.CurrentRoomID()
	if roomID == "" {
		return
	}
	r, ok := rt.Registry.RoomByID(roomID)
	if !ok {
		return
	}
	for _, m := range r.Snapshot() {
		if m.ClientID() == c.ClientID() {
			continue
		}
		m.Send(frame)
	}
}

// signalPayload carries whichever of sdp/payload the client sent, since
// signaling clients vary in which field they populate.
func signalPayload(sf wire.SignalFrame) any {
	if len(sf.Payload) > 0 {
		return json.RawMessage(sf.Payload)
	}
	if len(sf.SDP) > 0 {
		return map[string]json.RawMessage{"sdp": sf.SDP}
	}
	return nil
}
