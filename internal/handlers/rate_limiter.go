package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	// Allow reports whether key may proceed and, when it may not, how long until
	// it can.
	Allow(key string) (bool, time.Duration)
}

// clientBuckets gives every caller its own token bucket holding limit tokens that
// refill evenly across window.
type clientBuckets struct {
	limit     int
	window    time.Duration
	clock     func() time.Time
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// newClientRateLimiter returns nil when limiting is disabled.
func newClientRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientBuckets{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

func (l *clientBuckets) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)}
		l.buckets[key] = b
	}
	b.seen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweepLocked forgets callers idle for a full window; their buckets are full again
// and a fresh one behaves the same.
func (l *clientBuckets) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// clientKey identifies the caller by IP. middleware.RealIP has already folded
// X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
