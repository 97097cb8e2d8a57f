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

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max is the number of requests a caller may make per Window.
	Max    int
	Window time.Duration
	// Key identifies the caller. Defaults to ClientIP.
	Key func(*http.Request) string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// callerWindow counts one caller's requests in the current fixed window and
// remembers the count of the window before it.
type callerWindow struct {
	start time.Time
	count int
	prev  int
}

// estimate approximates the number of requests in the sliding window ending
// at now by weighting the previous window by its remaining overlap.
func (w *callerWindow) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - float64(now.Sub(w.start))/float64(size)
	return float64(w.prev)*max(overlap, 0) + float64(w.count)
}

type limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	callers map[string]*callerWindow
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &limiter{cfg: cfg, callers: make(map[string]*callerWindow)}
}

// take spends one request of key's budget. It reports the requests left and
// when the current window ends.
func (l *limiter) take(key string, now time.Time) (left int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.cfg.Window
	w, found := l.callers[key]
	if !found {
		w = &callerWindow{start: now.Truncate(size)}
		l.callers[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= size {
		w.prev = w.count
		if elapsed >= 2*size {
			w.prev = 0
		}
		w.count = 0
		w.start = now.Truncate(size)
	}

	reset = w.start.Add(size)
	used := w.estimate(now, size)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.count++
	return max(int(float64(l.cfg.Max)-used-1), 0), reset, true
}

// evict forgets callers idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.callers {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.callers, key)
		}
	}
}

func (l *limiter) run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit allows each caller Max requests per sliding Window and answers
// 429 rate_limited with Retry-After beyond that. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
// Idle callers are evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.run(ctx)

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := l.cfg.Now()
			left, reset, ok := l.take(l.cfg.Key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(reset.Sub(now), 0).Seconds()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HeaderKey keys callers by the value of header, so shoppers sharing an
// address get separate budgets. Requests without the header fall back to
// ClientIP.
func HeaderKey(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
		return ClientIP(r)
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
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
