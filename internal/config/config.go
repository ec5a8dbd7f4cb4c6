// Package config loads the signaling server's runtime knobs from the
// environment with flat, explicit wiring rather than pulling in a
// configuration framework.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment knob the server reads at startup.
type Config struct {
	// Addr is the listen address for the HTTP(S) server.
	Addr string

	// Production, when true, enables origin checking and mandatory token
	// verification at the Upgrade Gate. When false (development mode),
	// both checks are skipped but rate limiting stays active.
	Production bool

	// AllowedOrigins is the origin allow-list used in production mode.
	// Matching is exact-hostname or single-level subdomain suffix.
	AllowedOrigins []string

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret []byte

	// ConnectBurst (K_c) and ConnectWindow (W_c) bound upgrade attempts
	// per remote address; ConnectMaxConcurrent (N_c) bounds concurrent
	// connections per address.
	ConnectBurst         int
	ConnectWindow        time.Duration
	ConnectMaxConcurrent int

	// MessageBurst (P) and MessageWindow (D) parameterize the per-
	// connection message token bucket.
	MessageBurst  int
	MessageWindow time.Duration

	// HeartbeatInterval and HeartbeatMaxMissed parameterize the Heartbeat
	// Supervisor.
	HeartbeatInterval  time.Duration
	HeartbeatMaxMissed int

	// ShutdownDrain bounds how long graceful shutdown waits for
	// connections to drain before forcing closure.
	ShutdownDrain time.Duration

	// TokenTTL is the lifetime of tokens minted by the development-only
	// /token endpoint.
	TokenTTL time.Duration

	// ICEServers is advertised verbatim by the /ice-servers endpoint.
	ICEServers json.RawMessage
}

// FromEnv builds a Config from environment variables, applying sensible
// defaults when a variable is unset.
func FromEnv() Config {
	cfg := Config{
		Addr:                 getString("SIGNAL_ADDR", ":8080"),
		Production:           getBool("SIGNAL_PRODUCTION", false),
		AllowedOrigins:       getList("SIGNAL_ALLOWED_ORIGINS"),
		JWTSecret:            []byte(getString("SIGNAL_JWT_SECRET", "")),
		ConnectBurst:         getInt("SIGNAL_CONNECT_BURST", 10),
		ConnectWindow:        getDuration("SIGNAL_CONNECT_WINDOW", 10*time.Second),
		ConnectMaxConcurrent: getInt("SIGNAL_CONNECT_MAX_CONCURRENT", 5),
		MessageBurst:         getInt("SIGNAL_MESSAGE_BURST", 100),
		MessageWindow:        getDuration("SIGNAL_MESSAGE_WINDOW", 10*time.Second),
		HeartbeatInterval:    getDuration("SIGNAL_HEARTBEAT_INTERVAL", 30*time.Second),
		HeartbeatMaxMissed:   getInt("SIGNAL_HEARTBEAT_MAX_MISSED", 3),
		ShutdownDrain:        getDuration("SIGNAL_SHUTDOWN_DRAIN", 5*time.Second),
		TokenTTL:             getDuration("SIGNAL_TOKEN_TTL", 5*time.Minute),
		ICEServers:           json.RawMessage(getString("SIGNAL_ICE_SERVERS", "[]")),
	}
	return cfg
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
