package ratelimit_test

import (
	"testing"
	"time"

	"fieldlink/internal/ratelimit"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestAllowAdmitsUpToCap(t *testing.T) {
	limiter := ratelimit.New(10*time.Second, 3)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("client", at(int64(i*100))) {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}
	if limiter.Allow("client", at(400)) {
		t.Fatal("call past cap should be rejected")
	}
}

func TestAllowResetsAfterWindowElapses(t *testing.T) {
	limiter := ratelimit.New(10*time.Second, 2)
	if !limiter.Allow("client", at(0)) {
		t.Fatal("allow(0)")
	}
	if !limiter.Allow("client", at(100)) {
		t.Fatal("allow(100)")
	}
	if limiter.Allow("client", at(200)) {
		t.Fatal("allow(200) should be rejected")
	}
	if !limiter.Allow("client", at(10100)) {
		t.Fatal("allow(10100) should restart the window")
	}
	if !limiter.Allow("client", at(10200)) {
		t.Fatal("second call in the new window should be admitted")
	}
	if limiter.Allow("client", at(10300)) {
		t.Fatal("new window cap should apply")
	}
}

func TestBoundaryEqualTimestampStaysInWindow(t *testing.T) {
	limiter := ratelimit.New(10*time.Second, 1)
	if !limiter.Allow("client", at(0)) {
		t.Fatal("allow(0)")
	}
	// Exactly at the boundary: not strictly past the window, so rejected.
	if limiter.Allow("client", at(10000)) {
		t.Fatal("boundary-equal call should stay in the exhausted window")
	}
	if !limiter.Allow("client", at(10001)) {
		t.Fatal("one past the boundary should open a new window")
	}
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	limiter := ratelimit.New(10*time.Second, 1)
	if !limiter.Allow("a", at(0)) {
		t.Fatal("a admitted")
	}
	if !limiter.Allow("b", at(0)) {
		t.Fatal("b should have its own bucket")
	}
	if limiter.Allow("a", at(1)) {
		t.Fatal("a should be capped")
	}
}

func TestClearReleasesState(t *testing.T) {
	limiter := ratelimit.New(10*time.Second, 1)
	limiter.Allow("client", at(0))
	if limiter.Allow("client", at(1)) {
		t.Fatal("capped before clear")
	}
	limiter.Clear("client")
	if limiter.Len() != 0 {
		t.Fatalf("len = %d after clear", limiter.Len())
	}
	if !limiter.Allow("client", at(2)) {
		t.Fatal("fresh bucket after clear should admit")
	}
}
