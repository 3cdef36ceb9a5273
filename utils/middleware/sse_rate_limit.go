package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/utils/response"
)

// SSERateLimiter caps stream connections per client IP inside a sliding
// window. Stream routes are exempt from the general request limiter (a
// single connection outlives any window), so this guard is what stops
// reconnect storms.
type SSERateLimiter struct {
	mu          sync.Mutex
	connections map[string][]time.Time
	maxPerIP    int
	window      time.Duration
}

// NewSSERateLimiter creates a limiter allowing maxPerIP new connections
// per window. Zero values fall back to 5 connections per 60s.
func NewSSERateLimiter(maxPerIP int, window time.Duration) *SSERateLimiter {
	if maxPerIP <= 0 {
		maxPerIP = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &SSERateLimiter{
		connections: make(map[string][]time.Time),
		maxPerIP:    maxPerIP,
		window:      window,
	}
}

// Allow records a connection attempt and reports whether it is within the
// per-IP limit.
func (l *SSERateLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := time.Now().Add(-l.window)

	recent := l.connections[clientIP][:0]
	for _, at := range l.connections[clientIP] {
		if at.After(windowStart) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= l.maxPerIP {
		l.connections[clientIP] = recent
		return false
	}

	l.connections[clientIP] = append(recent, time.Now())
	return true
}

// Handler gates a stream route behind the connection cap
func (l *SSERateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			return response.TooManyRequests(c, "Too many stream connections. Please try again later.")
		}
		return c.Next()
	}
}
