package ratelimit

import (
	"testing"
	"time"
)

func TestConnectLimiter_BurstThenBlock(t *testing.T) {
	l := NewConnectLimiter(2, time.Second, 10)
	if !l.Allow("1.2.3.4") {
		t.Fatalf("first attempt should be allowed")
	}
	if !l.Allow("1.2.3.4") {
		t.Fatalf("second attempt (within burst) should be allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Fatalf("third attempt should breach the burst")
	}
}

func TestConnectLimiter_ConcurrencyCap(t *testing.T) {
	l := NewConnectLimiter(100, time.Second, 1)
	if !l.Allow("1.2.3.4") {
		t.Fatalf("first attempt should be allowed")
	}
	l.AddConnection("1.2.3.4")
	if l.Allow("1.2.3.4") {
		t.Fatalf("second concurrent connection should breach N_c")
	}
	l.RemoveConnection("1.2.3.4")
	if !l.Allow("1.2.3.4") {
		t.Fatalf("attempt after releasing a slot should be allowed")
	}
}

func TestConnectLimiter_IndependentAddresses(t *testing.T) {
	l := NewConnectLimiter(1, time.Second, 10)
	if !l.Allow("1.1.1.1") {
		t.Fatalf("first address should be allowed")
	}
	l.Allow("1.1.1.1") // consume remaining burst, may or may not succeed depending on timing
	if !l.Allow("2.2.2.2") {
		t.Fatalf("a different address must not be affected by the first address's limiter")
	}
}

func TestMessageLimiter_CapacityThenBlock(t *testing.T) {
	l := NewMessageLimiter(3, 10*time.Second)
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("clientA")
		if !ok {
			t.Fatalf("message %d within capacity should be allowed", i)
		}
	}
	ok, retryAfter := l.Allow("clientA")
	if ok {
		t.Fatalf("message beyond capacity should be blocked")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retryAfter, got %v", retryAfter)
	}
}

func TestMessageLimiter_IndependentClients(t *testing.T) {
	l := NewMessageLimiter(1, 10*time.Second)
	ok, _ := l.Allow("clientA")
	if !ok {
		t.Fatalf("clientA's first message should be allowed")
	}
	ok, _ = l.Allow("clientB")
	if !ok {
		t.Fatalf("clientB must not be affected by clientA's bucket")
	}
}

func TestMessageLimiter_RemoveDropsBucket(t *testing.T) {
	l := NewMessageLimiter(1, 10*time.Second)
	l.Allow("clientA")
	l.Remove("clientA")
	if _, ok := l.entries["clientA"]; ok {
		t.Fatalf("expected bucket to be removed")
	}
}
