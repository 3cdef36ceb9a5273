package middleware

import (
	"testing"
	"time"
)

func TestSSERateLimiterCapsPerIP(t *testing.T) {
	l := NewSSERateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("connection %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Error("connection over the cap must be rejected")
	}

	// other IPs have their own budget
	if !l.Allow("5.6.7.8") {
		t.Error("cap must be tracked per IP")
	}
}

func TestSSERateLimiterWindowExpiry(t *testing.T) {
	l := NewSSERateLimiter(1, 20*time.Millisecond)

	if !l.Allow("1.2.3.4") {
		t.Fatal("first connection should be allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("second connection inside the window must be rejected")
	}

	time.Sleep(30 * time.Millisecond)
	if !l.Allow("1.2.3.4") {
		t.Error("connection after the window must be allowed again")
	}
}
