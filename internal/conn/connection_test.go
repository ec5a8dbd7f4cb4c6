package conn

import (
	"testing"

	"signalcore/internal/wire"
)

type fakeSink struct {
	frames []wire.Outbound
}

func (f *fakeSink) Enqueue(frame wire.Outbound) bool {
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) Close(code int, reason string) {}

func TestConnection_CheckHeartbeat_TracksMissesUntilMax(t *testing.T) {
	c := New("c1", "alice", "127.0.0.1", "agent", "https://app.example", &fakeSink{})

	// First tick: alive, so it is flipped to false and the caller should
	// send a ping; that's not a miss yet.
	shouldPing, missed, exceeded := c.CheckHeartbeat(3)
	if !shouldPing || missed != 0 || exceeded {
		t.Fatalf("first tick: got shouldPing=%v missed=%d exceeded=%v", shouldPing, missed, exceeded)
	}

	for i := 1; i <= 2; i++ {
		shouldPing, missed, exceeded = c.CheckHeartbeat(3)
		if shouldPing || missed != i || exceeded {
			t.Fatalf("tick %d: got shouldPing=%v missed=%d exceeded=%v", i, shouldPing, missed, exceeded)
		}
	}

	shouldPing, missed, exceeded = c.CheckHeartbeat(3)
	if shouldPing || missed != 3 || !exceeded {
		t.Fatalf("final tick: got shouldPing=%v missed=%d exceeded=%v, want false/3/true", shouldPing, missed, exceeded)
	}
}

func TestConnection_SetAliveResetsMissCounter(t *testing.T) {
	c := New("c1", "alice", "127.0.0.1", "agent", "https://app.example", &fakeSink{})
	c.CheckHeartbeat(3)
	c.CheckHeartbeat(3)

	c.SetAlive(true)

	shouldPing, missed, exceeded := c.CheckHeartbeat(3)
	if !shouldPing || missed != 0 || exceeded {
		t.Fatalf("after pong reset: got shouldPing=%v missed=%d exceeded=%v", shouldPing, missed, exceeded)
	}
}

func TestConnection_DisplayIDPrefersUserID(t *testing.T) {
	c := New("c1", "alice", "", "", "", &fakeSink{})
	if got := c.DisplayID(); got != "alice" {
		t.Fatalf("got %q, want alice", got)
	}

	anon := New("c2", "", "", "", "", &fakeSink{})
	if got := anon.DisplayID(); got != "c2" {
		t.Fatalf("got %q, want c2", got)
	}
}

func TestConnection_PeerDescriptorReflectsCurrentRoom(t *testing.T) {
	c := New("c1", "alice", "10.0.0.1:1", "agent/1.0", "https://app.example", &fakeSink{})
	c.SetCurrentRoomID("r1")
	peer := c.Peer()
	if peer.ID != "alice" || peer.RoomID != "r1" || peer.RemoteAddress != "10.0.0.1:1" {
		t.Fatalf("got %+v", peer)
	}
}
