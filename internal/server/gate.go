package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signalcore/internal/auth"
	"signalcore/internal/conn"
	"signalcore/internal/config"
	"signalcore/internal/ratelimit"
	"signalcore/internal/room"
	"signalcore/internal/wire"
)

// Runtime owns every long-lived collaborator the server needs and
// implements the connection upgrade path as an http.Handler.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	Registry       *room.Registry
	Verifier       *auth.Verifier
	ConnectLimiter *ratelimit.ConnectLimiter
	MessageLimiter *ratelimit.MessageLimiter

	upgrader websocket.Upgrader

	draining atomic.Bool
}

// NewRuntime constructs a Runtime from cfg, wiring the token verifier,
// both rate limiters, and the room registry with flat construction and
// no DI framework.
func NewRuntime(cfg config.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:            cfg,
		logger:         logger,
		Registry:       room.New(logger),
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		ConnectLimiter: ratelimit.NewConnectLimiter(cfg.ConnectBurst, cfg.ConnectWindow, cfg.ConnectMaxConcurrent),
		MessageLimiter: ratelimit.NewMessageLimiter(cfg.MessageBurst, cfg.MessageWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // checked explicitly below
		},
	}
}

// ServeWS performs origin validation, token verification, and connect
// rate limiting before completing the WebSocket handshake, then hands
// off to the per-connection runtime.
func (rt *Runtime) ServeWS(w http.ResponseWriter, r *http.Request) {
	if rt.draining.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	remoteAddr := remoteAddress(r)
	query := r.URL.Query()
	token := query.Get("token")
	queryUserID := query.Get("userId")
	queryRoomID := query.Get("roomId")

	if rt.cfg.Production {
		if !originAllowed(origin, rt.cfg.AllowedOrigins) {
			rt.logger.Warn("rejected origin", slog.String("origin", origin), slog.String("remoteAddr", remoteAddr))
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
	}

	var identity auth.Identity
	if rt.cfg.Production {
		if token == "" {
			http.Error(w, wire.ReasonAuthRequired, http.StatusUnauthorized)
			return
		}
		id, verr := rt.Verifier.Verify(token)
		if verr != nil {
			status := http.StatusUnauthorized
			rt.logger.Warn("token verification failed", slog.String("reason", string(verr.Reason)), slog.String("remoteAddr", remoteAddr))
			http.Error(w, string(verr.Reason), status)
			return
		}
		identity = id
	} else if token != "" {
		// Development mode still honors a presented token if one was
		// given, so dev clients exercising the real auth path see
		// consistent identity resolution.
		if id, verr := rt.Verifier.Verify(token); verr == nil {
			identity = id
		}
	}

	if !rt.ConnectLimiter.Allow(remoteAddr) {
		w.Header().Set("Retry-After", "10")
		http.Error(w, wire.ReasonRateLimited, http.StatusTooManyRequests)
		return
	}

	ws, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error("websocket upgrade failed", slog.Any("error", err), slog.String("remoteAddr", remoteAddr))
		return
	}

	rt.ConnectLimiter.AddConnection(remoteAddr)

	// The verified token's identity wins over the query parameter when
	// both are present and disagree.
	userID := identity.UserID
	if userID == "" {
		userID = queryUserID
	}
	clientID := userIDOrFresh(userID)

	roomHint := identity.RoomID
	if roomHint == "" {
		roomHint = queryRoomID
	}

	t := newTransport(clientID, ws, rt.logger)
	c := conn.New(clientID, userID, remoteAddr, r.UserAgent(), origin, t)
	c.SetIdentity(identity.Name, identity.Role)

	defer func() {
		if rerr := recover(); rerr != nil {
			rt.logger.Error("panic finalizing upgrade", slog.Any("error", rerr), slog.String("clientId", clientID))
			t.Close(1011, "internal server error")
		}
	}()

	rt.Registry.Register(c)
	c.SetState(conn.StateConnected)

	go t.writePump()
	go rt.runHeartbeat(c, t)
	go rt.readPump(c, t, roomHint)

	c.Send(wire.Outbound{
		Type: wire.TypeConnected,
		From: wire.FromServer,
		Payload: wire.ConnectedPayload{
			ClientID: clientID,
			Peers:    wire.PeersUpdatedPayload{Peers: nil, Total: 0, Count: 0},
		},
	})

	rt.logger.Info("connection established", slog.String("clientId", clientID), slog.String("userId", userID), slog.String("remoteAddr", remoteAddr))

	// roomHint (from the token or the upgrade query) is carried through
	// only as a hint; joining is never implicit — the client must still
	// send an explicit join frame.
	_ = roomHint
}

// readPump owns the transport's reads. It runs until the transport
// closes, then performs cleanup exactly once.
func (rt *Runtime) readPump(c *conn.Connection, t *transport, _ string) {
	defer rt.cleanup(c, t)

	t.ws.SetReadLimit(wire.MaxFrameBytes + 1024) // slack for framing overhead
	_ = t.ws.SetReadDeadline(time.Now().Add(pongWait))
	t.ws.SetPongHandler(func(string) error {
		c.SetAlive(true)
		_ = t.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := t.ws.ReadMessage()
		if err != nil {
			rt.logger.Debug("read loop ended", slog.String("clientId", c.ClientID()), slog.Any("error", err))
			return
		}
		c.Touch()
		rt.dispatch(c, raw)
	}
}

// cleanup runs the membership teardown and presence notification for a
// connection that is going away: once closed, the connection is in no
// room and no longer in the registry.
func (rt *Runtime) cleanup(c *conn.Connection, t *transport) {
	c.SetState(conn.StateClosing)
	left := rt.Registry.Unregister(c.ClientID())
	rt.ConnectLimiter.RemoveConnection(c.RemoteAddress())
	rt.MessageLimiter.Remove(c.ClientID())
	t.Close(1001, "going away")
	c.SetState(conn.StateClosed)
	if left != nil {
		rt.broadcastPresence(left)
	}
	rt.logger.Info("connection closed", slog.String("clientId", c.ClientID()))
}

// userIDOrFresh prefers the resolved userId as the connection's clientId,
// else mints a fresh unique id.
func userIDOrFresh(userID string) string {
	if userID != "" {
		return userID
	}
	return uuid.NewString()
}

func remoteAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

// originAllowed matches an exact hostname or a single-level subdomain
// suffix (".host").
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	host := hostOf(origin)
	for _, a := range allowed {
		if a == origin || a == host {
			return true
		}
		if strings.HasPrefix(a, ".") && strings.HasSuffix(host, a) {
			if label := strings.TrimSuffix(host, a); label != "" && !strings.Contains(label, ".") {
				return true
			}
		}
		if ah := hostOf(a); ah != "" && ah == host {
			return true
		}
	}
	return false
}

func hostOf(originOrHost string) string {
	s := originOrHost
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
