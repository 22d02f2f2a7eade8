package main

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// perIPLimiter issues one rate.Limiter per client IP, grounded on the
// teacher's cmd/federation-hub withRateLimit middleware. This sits in front
// of the event queue's own try-send backpressure (§5): a client that floods
// the HTTP surface is rejected here before it ever reaches the queue.
type perIPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newPerIPLimiter(r rate.Limit, burst int) *perIPLimiter {
	return &perIPLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		burst:    burst,
	}
}

func (p *perIPLimiter) forRequest(r *http.Request) *rate.Limiter {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[host]
	if !ok {
		lim = rate.NewLimiter(p.r, p.burst)
		p.limiters[host] = lim
	}
	return lim
}
