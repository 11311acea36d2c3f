package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a fixed-window in-memory rate limiter keyed by client
// IP. Authentication endpoints get their own, stricter instances so a
// credential-stuffing attempt cannot ride the generous global limit.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*window
	requests int
	interval time.Duration
}

type window struct {
	count    int
	resetsAt time.Time
}

// NewRateLimiter allows requests per interval for each client.
func NewRateLimiter(requests int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*window),
		requests: requests,
		interval: interval,
	}
	go rl.evictLoop()
	return rl
}

// Middleware rejects over-limit clients with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UTC()
	win, ok := rl.clients[client]
	if !ok || now.After(win.resetsAt) {
		rl.clients[client] = &window{count: 1, resetsAt: now.Add(rl.interval)}
		return true
	}
	if win.count < rl.requests {
		win.count++
		return true
	}
	return false
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UTC()
		rl.mu.Lock()
		for client, win := range rl.clients {
			if now.After(win.resetsAt) {
				delete(rl.clients, client)
			}
		}
		rl.mu.Unlock()
	}
}

// clientIP prefers proxy headers and falls back to the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
