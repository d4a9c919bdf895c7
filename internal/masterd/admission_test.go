package masterd

import "testing"

func TestAdmissionControllerAlwaysAllowsWhenRateIsZero(t *testing.T) {
	a := NewAdmissionController(0, 1)
	for i := 0; i < 100; i++ {
		if !a.Allow() {
			t.Fatalf("Allow: expected every call to pass with no configured rate limit")
		}
	}
}

func TestAdmissionControllerEnforcesBurst(t *testing.T) {
	a := NewAdmissionController(1, 2)
	allowed := 0
	for i := 0; i < 10; i++ {
		if a.Allow() {
			allowed++
		}
	}
	if allowed == 0 {
		t.Fatalf("Allow: expected at least the burst allowance to pass")
	}
	if allowed >= 10 {
		t.Fatalf("Allow: expected the rate limiter to reject some of 10 immediate calls, got %d allowed", allowed)
	}
}
