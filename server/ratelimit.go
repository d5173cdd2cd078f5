package server

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter enforces a per-client queries-per-minute budget. Loopback
// clients are exempt.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newRateLimiter(perMin int) *rateLimiter {
	if perMin <= 0 {
		return nil
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

func (r *rateLimiter) Allow(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}

	key := ip.String()

	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.perMin)/60), r.perMin)
		r.limiters[key] = l
	}
	r.mu.Unlock()

	return l.Allow()
}
