package room

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"signalcore/internal/conn"
	"signalcore/internal/wire"
)

// fakeSink is a conn.Sink that records every frame enqueued to it,
// standing in for the WebSocket transport in unit tests.
type fakeSink struct {
	mu     sync.Mutex
	frames []wire.Outbound
	closed bool
}

func (f *fakeSink) Enqueue(frame wire.Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) last() (wire.Outbound, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return wire.Outbound{}, false
	}
	return f.frames[len(f.frames)-1], true
}

func newTestConn(clientID, userID string) (*conn.Connection, *fakeSink) {
	sink := &fakeSink{}
	c := conn.New(clientID, userID, "127.0.0.1:1234", "test-agent", "https://app.example", sink)
	return c, sink
}

func TestRegistry_JoinCreatesRoomAndTracksMembership(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	reg.Register(a)

	prior, joined, err := reg.Join(a, "r1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if prior != nil {
		t.Fatalf("expected no prior room, got %v", prior)
	}
	if joined.ID() != "r1" {
		t.Fatalf("got room id %q", joined.ID())
	}
	if a.CurrentRoomID() != "r1" {
		t.Fatalf("connection roomId = %q, want r1", a.CurrentRoomID())
	}
	if got := len(joined.Snapshot()); got != 1 {
		t.Fatalf("room has %d members, want 1", got)
	}
}

func TestRegistry_SecondJoinImplicitlyLeavesFirstRoom(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	reg.Register(a)
	if _, _, err := reg.Join(a, "r1"); err != nil {
		t.Fatalf("join r1: %v", err)
	}

	prior, joined, err := reg.Join(a, "r2")
	if err != nil {
		t.Fatalf("join r2: %v", err)
	}
	if prior == nil || prior.ID() != "r1" {
		t.Fatalf("expected prior room r1, got %v", prior)
	}
	if joined.ID() != "r2" {
		t.Fatalf("got %q", joined.ID())
	}
	if _, ok := reg.RoomByID("r1"); ok {
		t.Fatalf("r1 should have been pruned after becoming empty")
	}
}

func TestRegistry_EmptyRoomIsPruned(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	reg.Register(a)
	reg.Join(a, "r1")

	reg.Leave(a)

	if _, ok := reg.RoomByID("r1"); ok {
		t.Fatalf("expected r1 to be removed once empty")
	}
}

func TestRegistry_UnregisterRemovesFromRoomBeforeReturning(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	b, _ := newTestConn("c2", "bob")
	reg.Register(a)
	reg.Register(b)
	reg.Join(a, "r1")
	reg.Join(b, "r1")

	left := reg.Unregister(a.ClientID())
	if left == nil || left.ID() != "r1" {
		t.Fatalf("expected left room r1, got %v", left)
	}
	if got := len(left.Snapshot()); got != 1 {
		t.Fatalf("room has %d members after unregister, want 1", got)
	}
	if _, ok := reg.Lookup(a.ClientID()); ok {
		t.Fatalf("a should no longer be an active connection")
	}
}

func TestRegistry_JoinRejectsEmptyRoomID(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	reg.Register(a)
	if _, _, err := reg.Join(a, ""); err == nil {
		t.Fatalf("expected error joining empty roomId")
	}
}

func TestRegistry_FindInRoomPrefersUserIDOverClientID(t *testing.T) {
	reg := New(nil)
	a, _ := newTestConn("c1", "alice")
	b, _ := newTestConn("alice", "") // clientId collides with a's userId
	reg.Register(a)
	reg.Register(b)
	reg.Join(a, "r1")
	reg.Join(b, "r1")

	found, ok := reg.FindInRoom("r1", "alice")
	if !ok {
		t.Fatalf("expected to find alice")
	}
	if found.ClientID() != a.ClientID() {
		t.Fatalf("expected userId match to win, got clientId %q", found.ClientID())
	}
}

func TestRoom_ApplyUpdateAcceptsMatchingBaseVersion(t *testing.T) {
	r := newRoom("r1")
	base := int64(0)
	accepted, version, text := r.ApplyUpdate("hi", &base)
	if !accepted || version != 1 || text != "hi" {
		t.Fatalf("got accepted=%v version=%d text=%q", accepted, version, text)
	}
}

func TestRoom_ApplyUpdateRejectsStaleBaseVersion(t *testing.T) {
	r := newRoom("r1")
	zero := int64(0)
	r.ApplyUpdate("hi", &zero) // version now 1

	accepted, version, text := r.ApplyUpdate("yo", &zero)
	if accepted {
		t.Fatalf("expected rejection on stale baseVersion")
	}
	if version != 1 || text != "hi" {
		t.Fatalf("got version=%d text=%q, want unchanged state", version, text)
	}
}

func TestRoom_ApplyUpdateWithoutBaseVersionAlwaysAccepted(t *testing.T) {
	r := newRoom("r1")
	accepted, version, _ := r.ApplyUpdate("first", nil)
	if !accepted || version != 1 {
		t.Fatalf("got accepted=%v version=%d", accepted, version)
	}
	accepted, version, _ = r.ApplyUpdate("second", nil)
	if !accepted || version != 2 {
		t.Fatalf("got accepted=%v version=%d", accepted, version)
	}
}

func TestPeersPayload_CountExcludesRecipient(t *testing.T) {
	a, _ := newTestConn("c1", "alice")
	b, _ := newTestConn("c2", "bob")
	a.SetCurrentRoomID("r1")
	b.SetCurrentRoomID("r1")

	payload := PeersPayload([]*conn.Connection{a, b}, a.ClientID())
	if payload.Total != 2 {
		t.Fatalf("total = %d, want 2", payload.Total)
	}
	if payload.Count != 1 {
		t.Fatalf("count = %d, want 1", payload.Count)
	}

	sort.Slice(payload.Peers, func(i, j int) bool { return payload.Peers[i].ID < payload.Peers[j].ID })
	want := []wire.PeerDescriptor{
		{ID: "alice", RoomID: "r1", RemoteAddress: "127.0.0.1:1234", UserAgent: "test-agent", Origin: "https://app.example"},
		{ID: "bob", RoomID: "r1", RemoteAddress: "127.0.0.1:1234", UserAgent: "test-agent", Origin: "https://app.example"},
	}
	if diff := cmp.Diff(want, payload.Peers); diff != "" {
		t.Fatalf("peers mismatch (-want +got):\n%s", diff)
	}
}
