// Package ratelimit implements two independent limiters: a connect
// limiter keyed by remote address, and a message limiter keyed by
// clientId. Both are built on golang.org/x/time/rate, following the
// ecosystem's standard token-bucket primitive rather than hand-rolling
// one.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ConnectLimiter enforces K_c upgrade attempts per window W_c and a
// concurrent-connection cap N_c, both keyed by remote address.
type ConnectLimiter struct {
	mu       sync.Mutex
	burst    int
	window   time.Duration
	maxConns int

	entries map[string]*connectEntry
}

type connectEntry struct {
	limiter    *rate.Limiter
	concurrent int
	lastSeen   time.Time
}

// NewConnectLimiter constructs a ConnectLimiter allowing burst attempts
// per window, and at most maxConcurrent simultaneous connections, per
// remote address.
func NewConnectLimiter(burst int, window time.Duration, maxConcurrent int) *ConnectLimiter {
	if burst <= 0 {
		burst = 10
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &ConnectLimiter{
		burst:    burst,
		window:   window,
		maxConns: maxConcurrent,
		entries:  make(map[string]*connectEntry),
	}
}

// Allow reports whether a new upgrade attempt from addr should proceed.
// It does not itself count the attempt towards the concurrency cap; call
// AddConnection on success and RemoveConnection on close.
func (l *ConnectLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked()

	e, ok := l.entries[addr]
	if !ok {
		e = &connectEntry{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.burst)), l.burst)}
		l.entries[addr] = e
	}
	e.lastSeen = time.Now()

	if e.concurrent >= l.maxConns {
		return false
	}
	return e.limiter.Allow()
}

// AddConnection records a successful connection from addr against the
// concurrency cap.
func (l *ConnectLimiter) AddConnection(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[addr]
	if !ok {
		e = &connectEntry{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.burst)), l.burst)}
		l.entries[addr] = e
	}
	e.concurrent++
	e.lastSeen = time.Now()
}

// RemoveConnection releases a connection slot for addr.
func (l *ConnectLimiter) RemoveConnection(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[addr]
	if !ok {
		return
	}
	if e.concurrent > 0 {
		e.concurrent--
	}
	e.lastSeen = time.Now()
}

// sweepLocked evicts entries whose last activity fell outside the
// window and which hold no live connections.
func (l *ConnectLimiter) sweepLocked() {
	cutoff := time.Now().Add(-l.window)
	for addr, e := range l.entries {
		if e.concurrent == 0 && e.lastSeen.Before(cutoff) {
			delete(l.entries, addr)
		}
	}
}

// MessageLimiter enforces a token bucket of a fixed capacity refilled
// over a fixed period, keyed by clientId.
type MessageLimiter struct {
	mu       sync.Mutex
	capacity int
	period   time.Duration
	entries  map[string]*messageEntry
}

type messageEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMessageLimiter constructs a MessageLimiter with capacity burst
// tokens refilled over period.
func NewMessageLimiter(capacity int, period time.Duration) *MessageLimiter {
	if capacity <= 0 {
		capacity = 100
	}
	if period <= 0 {
		period = 10 * time.Second
	}
	return &MessageLimiter{
		capacity: capacity,
		period:   period,
		entries:  make(map[string]*messageEntry),
	}
}

// Allow reports whether clientID may send another message now, and if
// not, how long the caller should wait before retrying.
func (l *MessageLimiter) Allow(clientID string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked()

	e, found := l.entries[clientID]
	if !found {
		e = &messageEntry{limiter: rate.NewLimiter(rate.Limit(float64(l.capacity)/l.period.Seconds()), l.capacity)}
		l.entries[clientID] = e
	}
	e.lastSeen = time.Now()

	r := e.limiter.Reserve()
	if !r.OK() {
		return false, 0
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// Remove drops clientID's bucket. Called when its connection closes.
func (l *MessageLimiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, clientID)
}

func (l *MessageLimiter) sweepLocked() {
	cutoff := time.Now().Add(-l.period * 2)
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
