// Package wire defines the JSON frame shapes exchanged over the signaling
// WebSocket and the decoding rules that turn a raw text frame into one of
// them.
package wire

import (
	"encoding/json"
	"fmt"
)

// MaxFrameBytes bounds the size of an inbound frame before it is even
// handed to the JSON decoder.
const MaxFrameBytes = 65536

// Inbound frame type tags, as received from a client.
const (
	TypeJoin         = "join"
	TypeJoinRoom     = "join-room"
	TypeLeave        = "leave"
	TypeGetPeers     = "get-peers"
	TypeGetDoc       = "get-doc"
	TypeRequestDoc   = "request-doc"
	TypeUpdate       = "update"
	TypeCursor       = "cursor"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeICE          = "ice" // alias for ice-candidate
)

// Outbound frame type tags, as sent to a client.
const (
	TypeConnected      = "connected"
	TypeJoined         = "joined"
	TypeLeft           = "left"
	TypeDoc            = "doc"
	TypeDocUpdated     = "doc-updated"
	TypeUpdateRejected = "update-rejected"
	TypePeersUpdated   = "peers-updated"
	TypeError          = "error"
)

// Error reasons placed on the wire in an Error frame.
const (
	ReasonInvalidJSON           = "invalid_json"
	ReasonInvalidMessage        = "invalid_message"
	ReasonUnknownType           = "unknown_type"
	ReasonAuthRequired          = "auth_required"
	ReasonAuthFailed            = "auth_failed"
	ReasonTokenExpired          = "token_expired"
	ReasonRateLimited           = "rate_limited"
	ReasonServerError           = "server_error"
	ReasonJoinRequiresRoomID    = "join requires roomId"
)

// Envelope is the subset of fields every inbound frame shares. Dispatch
// decides what else to decode based on Type.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	To      string          `json:"to,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// DecodeEnvelope parses raw bytes as JSON bounded to MaxFrameBytes and
// extracts the routing envelope. The full raw message is retained on the
// envelope so dispatch can re-decode into a type-specific shape.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) > MaxFrameBytes {
		return Envelope{}, fmt.Errorf("frame exceeds %d bytes", MaxFrameBytes)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing type field")
	}
	env.Raw = raw
	return env, nil
}

// JoinFrame is the payload of a join / join-room frame.
type JoinFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// LeaveFrame is the payload of a leave frame.
type LeaveFrame struct {
	Type string `json:"type"`
}

// UpdateFrame is the payload of a document update request.
type UpdateFrame struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	Text        string `json:"text"`
	BaseVersion *int64 `json:"baseVersion,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// CursorFrame is the payload of a cursor/selection broadcast.
type CursorFrame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SignalFrame is the payload of offer / answer / ice-candidate frames.
type SignalFrame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	To      string          `json:"to,omitempty"`
	SDP     json.RawMessage `json:"sdp,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the common shape of every frame the server writes back to a
// client: a sender tag, an arbitrary payload, and a send-time timestamp.
type Outbound struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// FromServer is the sentinel "from" value used for frames the server
// itself originates (connected, joined, peers-updated, error, ...) rather
// than relaying on behalf of a peer.
const FromServer = "server"

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

// PeerDescriptor is the per-peer shape carried in peers-updated frames.
type PeerDescriptor struct {
	ID            string `json:"id"`
	Origin        string `json:"origin,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	RemoteAddress string `json:"remoteAddress,omitempty"`
	RoomID        string `json:"roomId"`
}

// PeersUpdatedPayload is the payload of a peers-updated frame.
type PeersUpdatedPayload struct {
	Peers []PeerDescriptor `json:"peers"`
	Total int              `json:"total"`
	Count int              `json:"count"`
}

// DocPayload is the payload of a doc / doc-updated frame.
type DocPayload struct {
	Version int64  `json:"version"`
	Text    string `json:"text"`
	Author  string `json:"author,omitempty"`
}

// UpdateRejectedPayload is the payload of an update-rejected frame.
type UpdateRejectedPayload struct {
	CurrentVersion int64  `json:"currentVersion"`
	Text           string `json:"text"`
}

// ConnectedPayload is the payload of the initial connected frame.
type ConnectedPayload struct {
	ClientID string              `json:"clientId"`
	Peers    PeersUpdatedPayload `json:"peers"`
}

// JoinedPayload is the payload of a joined frame.
type JoinedPayload struct {
	RoomID string `json:"roomId"`
}

// LeftPayload is the payload of a left frame.
type LeftPayload struct {
	RoomID string `json:"roomId"`
}
