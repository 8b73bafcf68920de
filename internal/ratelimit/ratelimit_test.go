package ratelimit

import "testing"

// TestLimiterAllowsUpToMaxThenRejects covers invariant 6: within a
// single window, the (N+1)th request from a client is rejected.
func TestLimiterAllowsUpToMaxThenRejects(t *testing.T) {
	l := NewLimiter(5)

	for i := 0; i < 5; i++ {
		if v := l.Allow("1.2.3.4"); v != Allow {
			t.Fatalf("request %d: expected Allow, got %v", i, v)
		}
	}
	for i := 0; i < 3; i++ {
		if v := l.Allow("1.2.3.4"); v != TooMany {
			t.Fatalf("request %d: expected TooMany, got %v", i, v)
		}
	}
}

// TestLimiterResetClearsAllClients verifies the fixed-window reset is
// global: it forgets every client's count at once, not per-client.
func TestLimiterResetClearsAllClients(t *testing.T) {
	l := NewLimiter(1)

	l.Allow("a")
	l.Allow("b")
	if v := l.Allow("a"); v != TooMany {
		t.Fatalf("expected client a to be over budget before reset, got %v", v)
	}

	l.reset()

	if v := l.Allow("a"); v != Allow {
		t.Fatalf("expected client a to be allowed again after reset, got %v", v)
	}
	if v := l.Allow("b"); v != Allow {
		t.Fatalf("expected client b to be allowed again after reset, got %v", v)
	}
}

// TestLimiterTracksClientsIndependently ensures one client's count
// never affects another's budget within the same window.
func TestLimiterTracksClientsIndependently(t *testing.T) {
	l := NewLimiter(1)
	if v := l.Allow("a"); v != Allow {
		t.Fatalf("client a: expected Allow, got %v", v)
	}
	if v := l.Allow("b"); v != Allow {
		t.Fatalf("client b: expected Allow, got %v", v)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 1000; i++ {
		if v := l.Allow("anyone"); v != Allow {
			t.Fatalf("expected NoopLimiter to always allow, got %v", v)
		}
	}
}
