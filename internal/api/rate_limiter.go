package api

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/token-ledger/internal/errors"
)

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	limiters *xsync.Map[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters: xsync.NewMap[string, *rate.Limiter](),
		limit:    limit,
		burst:    burst,
	}
}

// getLimiter returns the client's limiter, creating it on first use
func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(client); ok {
		return limiter
	}
	limiter, _ := rl.limiters.Compute(client, func(old *rate.Limiter, loaded bool) (*rate.Limiter, xsync.ComputeOp) {
		if loaded {
			return old, xsync.UpdateOp
		}
		return rate.NewLimiter(rl.limit, rl.burst), xsync.UpdateOp
	})
	return limiter
}

// Allow reports whether the client may make another request now
func (rl *RateLimiter) Allow(client string) bool {
	return rl.getLimiter(client).Allow()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfter is the whole number of seconds until a client's bucket refills by one
func (rl *RateLimiter) retryAfter() int {
	if rl.limit == rate.Inf || rl.limit <= 0 {
		return 1
	}
	return int(math.Ceil(1 / float64(rl.limit)))
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				retryAfter := rl.retryAfter()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondCategorized(w, r, apperrors.NewRateLimitError(retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
