package qnp

import (
	"testing"
	"time"
)

func TestShouldPingAfterTimeout(t *testing.T) {
	k := newKeepAlive()
	k.pingTimeout = 100 * time.Millisecond
	start := time.Unix(0, 0)

	if k.shouldPing(start) {
		t.Fatal("first call should refresh, not fire")
	}
	if k.shouldPing(start.Add(50 * time.Millisecond)) {
		t.Fatal("expected no ping before timeout elapses")
	}
	if !k.shouldPing(start.Add(150 * time.Millisecond)) {
		t.Fatal("expected ping once timeout elapses")
	}
}

func TestKeepAliveTimesOutAfterRetries(t *testing.T) {
	k := newKeepAlive()
	k.pingRetryCount = 3
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		if k.timedOut() {
			t.Fatalf("timed out early after %d pings", i)
		}
		k.onPingSent(now)
	}
	if !k.timedOut() {
		t.Fatal("expected timeout after pingRetryCount pings with no reply")
	}
}

func TestValidPacketResetsRetryCounter(t *testing.T) {
	k := newKeepAlive()
	now := time.Unix(0, 0)
	k.onPingSent(now)
	k.onPingSent(now)
	k.onValidPacketReceived()
	if k.pingSendCount != 0 {
		t.Fatalf("pingSendCount = %d, want 0 after a valid packet", k.pingSendCount)
	}
	if !k.lastPingSendTime.IsZero() {
		t.Fatal("expected lastPingSendTime reset to zero")
	}
}

func TestSetTimeoutsRejectsZero(t *testing.T) {
	k := newKeepAlive()
	if err := k.setTimeouts(0, 5); err != ErrInvalidPingTimeout {
		t.Fatalf("setTimeouts(0, ...) = %v, want ErrInvalidPingTimeout", err)
	}
}

func TestNeedAckForFreshness(t *testing.T) {
	if needAckForFreshness(10, 9) {
		t.Fatal("expected no ack needed for a small gap")
	}
	if !needAckForFreshness(100, 50) {
		t.Fatal("expected ack needed once the gap exceeds half the window")
	}
}
