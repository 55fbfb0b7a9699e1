package httpserver

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/robalobadob/cardle/internal/apperr"
)

const (
	maxLimiters = 10_000
	limiterTTL  = 10 * time.Minute
)

// ipLimiter is a token bucket per client IP. Idle buckets expire.
type ipLimiter struct {
	rps      rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxLimiters, nil, limiterTTL),
	}
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	if lim, ok := l.limiters.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Add(key, lim)
	return lim
}

// allow takes a token for key, or reports how long until one is available.
func (l *ipLimiter) allow(key string, now time.Time) (time.Duration, bool) {
	res := l.get(key).ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// rateLimit rejects requests over the per-IP budget with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, allowed := s.limiter.allow(clientIP(r), time.Now()); !allowed {
			s.writeError(w, r, apperr.RateLimited("too many requests, slow down", wait))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. RemoteAddr is only rewritten
// from proxy headers when the server trusts its proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
