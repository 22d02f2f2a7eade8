package main

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestPerIPLimiter_SameIPReusesLimiter(t *testing.T) {
	p := newPerIPLimiter(rate.Limit(1), 1)
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	r2 := httptest.NewRequest("GET", "/", nil)
	r2.RemoteAddr = "10.0.0.1:5678"

	lim1 := p.forRequest(r1)
	lim2 := p.forRequest(r2)
	if lim1 != lim2 {
		t.Fatal("expected same limiter instance for same client IP across different ports")
	}
}

func TestPerIPLimiter_DifferentIPsGetDifferentLimiters(t *testing.T) {
	p := newPerIPLimiter(rate.Limit(1), 1)
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	r2 := httptest.NewRequest("GET", "/", nil)
	r2.RemoteAddr = "10.0.0.2:1234"

	lim1 := p.forRequest(r1)
	lim2 := p.forRequest(r2)
	if lim1 == lim2 {
		t.Fatal("expected different limiter instances for different client IPs")
	}
}

func TestPerIPLimiter_EnforcesBurst(t *testing.T) {
	p := newPerIPLimiter(rate.Limit(0.001), 2)
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	lim := p.forRequest(r)
	if !lim.Allow() {
		t.Fatal("first request should be allowed")
	}
	if !lim.Allow() {
		t.Fatal("second request (within burst) should be allowed")
	}
	if lim.Allow() {
		t.Fatal("third request should exceed burst and be rejected")
	}
}
