package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/attrition/internal/api/response"
	"github.com/kiranshivaraju/attrition/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit provides fixed-window rate limiting via Redis. Each subject gets
// one counter per calendar minute.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

type RateLimitOption func(*RateLimit)

// WithClock replaces time.Now when deciding the current window.
func WithClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

// NewRateLimit creates a new RateLimit middleware. A nil cache disables it.
func NewRateLimit(c cache.Cache, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit counts requests per API key when auth ran, otherwise per client IP.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		subject, ok := getSubject(r)
		if !ok {
			subject = "ip:" + ClientIP(r)
		}

		now := rl.now()
		window := now.Truncate(rateWindow)
		reset := window.Add(rateWindow)

		key := cache.RateLimitKey(subject, window)
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int(math.Ceil(reset.Sub(now).Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
