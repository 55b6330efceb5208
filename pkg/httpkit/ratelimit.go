package httpkit

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter applies a fixed-window counter in Redis. If rdb is nil
// (Redis unreachable at startup), it fails open — exactly the teacher's
// policy of disabling rate limiting rather than rejecting every request.
type RateLimiter struct {
	rdb *redis.Client
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

func (l *RateLimiter) limit(limitN int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.rdb == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := "rl:" + r.URL.Path + ":" + keyFn(r)
			pipe := l.rdb.TxPipeline()
			incr := pipe.Incr(r.Context(), key)
			pipe.Expire(r.Context(), key, window)
			if _, err := pipe.Exec(r.Context()); err != nil {
				WriteError(w, NewAppError(KindInternal, "rate limit error"))
				return
			}
			if incr.Val() > int64(limitN) {
				WriteJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByIP limits requests per client IP.
func (l *RateLimiter) ByIP(limitN int, window time.Duration) func(http.Handler) http.Handler {
	return l.limit(limitN, window, ClientIP)
}
