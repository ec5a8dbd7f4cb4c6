package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"signalcore/internal/conn"
	"signalcore/internal/room"
	"signalcore/internal/wire"
)

// dispatch enforces the per-connection message rate limit, parses the
// frame envelope, and routes by type. A panic anywhere in a handler is
// recovered here and translated into a server_error frame — the
// connection is never torn down for a dispatcher-internal failure.
func (rt *Runtime) dispatch(c *conn.Connection, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("dispatcher panic", slog.Any("panic", r), slog.String("clientId", c.ClientID()))
			c.Send(errorFrame(wire.ReasonServerError, ""))
		}
	}()

	if ok, retryAfter := rt.MessageLimiter.Allow(c.ClientID()); !ok {
		c.Send(wire.Outbound{
			Type: wire.TypeError,
			From: wire.FromServer,
			Payload: wire.ErrorPayload{
				Reason:     wire.ReasonRateLimited,
				RetryAfter: int64(retryAfter.Round(time.Second) / time.Second),
			},
		})
		return
	}

	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		c.Send(errorFrame(wire.ReasonInvalidJSON, err.Error()))
		return
	}

	switch env.Type {
	case wire.TypeJoin, wire.TypeJoinRoom:
		rt.handleJoinFrame(c, env)
	case wire.TypeLeave:
		rt.handleLeaveFrame(c)
	case wire.TypeGetPeers:
		rt.handleGetPeers(c)
	case wire.TypeGetDoc, wire.TypeRequestDoc:
		rt.handleGetDoc(c, env)
	case wire.TypeUpdate:
		rt.handleUpdate(c, env)
	case wire.TypeCursor:
		rt.handleCursor(c, env)
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeICECandidate, wire.TypeICE:
		rt.handleSignal(c, env)
	default:
		c.Send(errorFrame(wire.ReasonUnknownType, env.Type))
	}
}

func errorFrame(reason, detail string) wire.Outbound {
	return wire.Outbound{
		Type:    wire.TypeError,
		From:    wire.FromServer,
		Payload: wire.ErrorPayload{Reason: reason, Detail: detail},
	}
}

// handleJoinFrame moves the connection into the named room, creating it
// if needed, sends joined plus the initial doc snapshot, then emits
// presence for the room left (if any) and the room joined.
func (rt *Runtime) handleJoinFrame(c *conn.Connection, env wire.Envelope) {
	var jf wire.JoinFrame
	if err := json.Unmarshal(env.Raw, &jf); err != nil {
		c.Send(errorFrame(wire.ReasonInvalidMessage, err.Error()))
		return
	}
	if jf.RoomID == "" {
		c.Send(errorFrame(wire.ReasonJoinRequiresRoomID, ""))
		return
	}
	if jf.UserID != "" {
		c.SetUserID(jf.UserID)
	}

	prior, joined, err := rt.Registry.Join(c, jf.RoomID)
	if err != nil {
		c.Send(errorFrame(wire.ReasonInvalidMessage, err.Error()))
		return
	}

	c.Send(wire.Outbound{Type: wire.TypeJoined, From: wire.FromServer, Payload: wire.JoinedPayload{RoomID: jf.RoomID}})
	version, text := joined.Doc()
	c.Send(wire.Outbound{Type: wire.TypeDoc, From: wire.FromServer, Payload: wire.DocPayload{Version: version, Text: text}})

	if prior != nil {
		rt.broadcastPresence(prior)
	}
	rt.broadcastPresence(joined)

	rt.logger.Info("client joined room", slog.String("clientId", c.ClientID()), slog.String("roomId", jf.RoomID))
}

// handleLeaveFrame implements the leave row: remove from the current
// room, send left, emit presence for the former room.
func (rt *Runtime) handleLeaveFrame(c *conn.Connection) {
	left := rt.Registry.Leave(c)
	roomID := ""
	if left != nil {
		roomID = left.ID()
	}
	c.Send(wire.Outbound{Type: wire.TypeLeft, From: wire.FromServer, Payload: wire.LeftPayload{RoomID: roomID}})
	if left != nil {
		rt.broadcastPresence(left)
	}
}

// handleGetPeers implements the get-peers row: reply to the sender only
// with a peers-updated snapshot scoped to its room.
func (rt *Runtime) handleGetPeers(c *conn.Connection) {
	roomID := c.CurrentRoomID()
	if roomID == "" {
		c.Send(wire.Outbound{Type: wire.TypePeersUpdated, From: wire.FromServer, Payload: wire.PeersUpdatedPayload{}})
		return
	}
	r, ok := rt.Registry.RoomByID(roomID)
	if !ok {
		c.Send(wire.Outbound{Type: wire.TypePeersUpdated, From: wire.FromServer, Payload: wire.PeersUpdatedPayload{}})
		return
	}
	payload := room.PeersPayload(r.Snapshot(), c.ClientID())
	c.Send(wire.Outbound{Type: wire.TypePeersUpdated, From: wire.FromServer, Payload: payload})
}

// handleGetDoc implements the get-doc / request-doc row: reply to the
// sender with the room's current {version, text}.
func (rt *Runtime) handleGetDoc(c *conn.Connection, env wire.Envelope) {
	roomID := env.RoomID
	if roomID == "" {
		roomID = c.CurrentRoomID()
	}
	if roomID == "" {
		c.Send(errorFrame(wire.ReasonInvalidMessage, "get-doc requires roomId"))
		return
	}
	r, ok := rt.Registry.RoomByID(roomID)
	if !ok {
		c.Send(wire.Outbound{Type: wire.TypeDoc, From: wire.FromServer, Payload: wire.DocPayload{}})
		return
	}
	version, text := r.Doc()
	c.Send(wire.Outbound{Type: wire.TypeDoc, From: wire.FromServer, Payload: wire.DocPayload{Version: version, Text: text}})
}

// handleUpdate accepts the update iff baseVersion is absent or current,
// otherwise rejects the sender only. No merge is attempted.
func (rt *Runtime) handleUpdate(c *conn.Connection, env wire.Envelope) {
	var uf wire.UpdateFrame
	if err := json.Unmarshal(env.Raw, &uf); err != nil {
		c.Send(errorFrame(wire.ReasonInvalidMessage, err.Error()))
		return
	}
	roomID := uf.RoomID
	if roomID == "" {
		roomID = c.CurrentRoomID()
	}
	if roomID == "" {
		c.Send(errorFrame(wire.ReasonInvalidMessage, "update requires roomId"))
		return
	}
	r, ok := rt.Registry.RoomByID(roomID)
	if !ok {
		c.Send(errorFrame(wire.ReasonInvalidMessage, "unknown room"))
		return
	}

	accepted, version, text := r.ApplyUpdate(uf.Text, uf.BaseVersion)
	if !accepted {
		c.Send(wire.Outbound{
			Type:    wire.TypeUpdateRejected,
			From:    wire.FromServer,
			Payload: wire.UpdateRejectedPayload{CurrentVersion: version, Text: text},
		})
		return
	}

	author := uf.UserID
	if author == "" {
		author = c.DisplayID()
	}
	frame := wire.Outbound{
		Type:    wire.TypeDocUpdated,
		From:    wire.FromServer,
		Payload: wire.DocPayload{Version: version, Text: text, Author: author},
	}
	for _, m := range r.Snapshot() {
		m.Send(frame)
	}
}

// handleCursor implements the cursor row: broadcast to the room,
// excluding the sender.
func (rt *Runtime) handleCursor(c *conn.Connection, env wire.Envelope) {
	roomID := env.RoomID
	if roomID == "" {
		roomID = c.CurrentRoomID()
	}
	if roomID == "" {
		return
	}
	r, ok := rt.Registry.RoomByID(roomID)
	if !ok {
		return
	}
	var cf wire.CursorFrame
	_ = json.Unmarshal(env.Raw, &cf)

	frame := wire.Outbound{Type: wire.TypeCursor, From: c.DisplayID(), Payload: cf.Payload}
	for _, m := range r.Snapshot() {
		if m.ClientID() == c.ClientID() {
			continue
		}
		m.Send(frame)
	}
}
