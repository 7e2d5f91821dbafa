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
)

// RateLimitConfig configures a sliding-window Limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Key extracts the bucket key; client IP when nil.
	Key func(*http.Request) string
	// Skip exempts a request from the limit; nil limits every request.
	Skip func(*http.Request) bool
}

type window struct {
	start time.Time
	prev  int
	curr  int
}

// weight returns the estimated request count over the trailing window.
func (b *window) weight(now time.Time, size time.Duration) float64 {
	overlap := 1 - float64(now.Sub(b.start))/float64(size)
	if overlap < 0 {
		overlap = 0
	}
	return float64(b.prev)*overlap + float64(b.curr)
}

func (b *window) advance(now time.Time, size time.Duration) {
	elapsed := now.Sub(b.start)
	switch {
	case elapsed < size:
		return
	case elapsed < 2*size:
		b.prev = b.curr
	default:
		b.prev = 0
	}
	b.curr = 0
	b.start = now.Truncate(size)
}

// Limiter approximates a sliding window per key from two fixed windows.
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*window
}

// NewLimiter returns a Limiter. Non-positive Max or Window fall back to
// 100 requests per minute.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*window),
	}
}

// Take consumes one request for key. It reports the remaining budget, the
// end of the current window and whether the request is admitted.
func (l *Limiter) Take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found {
		b = &window{start: now.Truncate(l.cfg.Window)}
		l.buckets[key] = b
	}
	b.advance(now, l.cfg.Window)
	reset = b.start.Add(l.cfg.Window)

	used := b.weight(now, l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	b.curr++
	return max(0, l.cfg.Max-int(math.Ceil(used+1))), reset, true
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops keys idle for two windows or more.
func (l *Limiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.start) >= 2*l.cfg.Window {
			delete(l.buckets, k)
		}
	}
}

// Run sweeps idle keys every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	t := time.NewTicker(2 * l.cfg.Window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Sweep()
		}
	}
}

// Middleware enforces the limit and sets the X-RateLimit-* headers on
// every limited response. Rejected requests get 429 with Retry-After.
func (l *Limiter) Middleware() Middleware {
	limit := strconv.Itoa(l.cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.cfg.Skip != nil && l.cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			remaining, reset, ok := l.Take(l.cfg.Key(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(0, reset.Sub(l.now()))
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// RemoteAddr host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
