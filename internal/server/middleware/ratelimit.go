// Package middleware contains HTTP middleware for the feedbacker API.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"feedbacker/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimit limits requests per client address. Submissions are cheap to
// reject here before they ever reach the scheduler queue.
// A limit of 0 disables limiting.
func RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // client addr -> *cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 {
				limiter := getOrCreateLimiter(&limiters, clientAddr(r), limit, burst, 5*time.Minute)
				if !limiter.Allow() {
					w.Header().Set("Retry-After", "1")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusTooManyRequests)
					json.NewEncoder(w).Encode(api.ErrorResponse{
						Error: "Too many requests",
						Code:  "429",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, key string, limit float64, burst int, ttl time.Duration) *rate.Limiter {
	if cached, ok := limiters.Load(key); ok {
		c := cached.(*cachedLimiter)
		if time.Now().Before(c.expiresAt) {
			return c.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
