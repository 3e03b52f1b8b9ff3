package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const limiterIdleTTL = 10 * time.Minute

// IntakeLimiter throttles report submission with a token bucket per
// client IP. Buckets of idle clients expire.
type IntakeLimiter struct {
	every   rate.Limit
	burst   int
	buckets *gocache.Cache
}

// NewIntakeLimiter returns nil when RatePerMinute is not positive.
func NewIntakeLimiter(cfg domain.IntakeConfig) *IntakeLimiter {
	if cfg.RatePerMinute <= 0 {
		return nil
	}
	return &IntakeLimiter{
		every:   rate.Limit(float64(cfg.RatePerMinute) / time.Minute.Seconds()),
		burst:   max(cfg.Burst, 1),
		buckets: gocache.New(limiterIdleTTL, limiterIdleTTL),
	}
}

func (l *IntakeLimiter) bucket(ip string) *rate.Limiter {
	if v, ok := l.buckets.Get(ip); ok {
		l.buckets.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(l.every, l.burst)
	if l.buckets.Add(ip, fresh, gocache.DefaultExpiration) != nil {
		if v, ok := l.buckets.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return fresh
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
// A nil limiter lets everything through.
func (l *IntakeLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.bucket(clientIP(r)).Reserve()
		if wait := res.Delay(); wait > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "too many reports, slow down",
				"kind":  "rate_limited",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP expects middleware.RealIP to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
