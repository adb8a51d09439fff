package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max requests are allowed per Window, refilled continuously.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. ClientKey is used when nil.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiter struct {
	cfg   RateLimitConfig
	every rate.Limit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey("")
	}
	return &limiter{
		cfg:     cfg,
		every:   rate.Every(cfg.Window / time.Duration(max(cfg.Max, 1))),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// reserve takes a token for key. It returns the tokens left and, when the
// bucket is empty, how long until the next token.
func (l *limiter) reserve(key string) (remaining int, wait time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.cfg.Max)}
		l.buckets[key] = b
	}
	b.seen = now

	if !b.lim.AllowN(now, 1) {
		r := b.lim.ReserveN(now, 1)
		wait = r.DelayFrom(now)
		r.CancelAt(now)
		return 0, wait
	}
	return int(math.Max(0, math.Floor(b.lim.TokensAt(now)))), 0
}

// evict forgets clients idle for longer than a window; their buckets are
// full again by then.
func (l *limiter) evict() {
	cutoff := l.now().Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// RateLimit limits requests per client. Rejected requests get 429 with a
// Retry-After header.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle
// clients every window until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, wait := l.reserve(l.cfg.KeyFunc(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)

		e := jx.GetEncoder()
		defer jx.PutEncoder(e)
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
			e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
		})
		_, _ = w.Write(e.Bytes())
	})
}

// ClientKey identifies API clients by the value of keyHeader when present,
// so integrations behind one NAT get separate buckets, and by client IP
// otherwise.
func ClientKey(keyHeader string) func(*http.Request) string {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if k := r.Header.Get(keyHeader); k != "" {
				return "key:" + k
			}
		}
		return "ip:" + clientIP(r)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
