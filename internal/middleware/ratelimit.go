package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "mertoncli/internal/errors"
)

// clientIdleTTL is how long an idle client's bucket is kept
const clientIdleTTL = 10 * time.Minute

// RateLimiter applies a token bucket per client IP
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger *slog.Logger
	errors *apierrors.ErrorHandler

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows each client rps requests per second with bursts of
// up to burst
func NewRateLimiter(rps float64, burst int, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		logger:    logger,
		errors:    errorHandler,
		clients:   map[string]*clientBucket{},
		lastSweep: time.Now(),
	}
}

// Handler rejects requests over the client's budget with 429 and a
// Retry-After header
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := GetRealIP(r)
		wait, ok := rl.reserve(client, time.Now())
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", client),
			slog.Int("retry_after_seconds", seconds))

		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		rl.errors.HandleError(w, r, apierrors.ErrRateLimitExceeded.WithDetails(
			map[string]interface{}{"retry_after_seconds": seconds},
		))
	})
}

// reserve takes a token for client. When none is available it returns the
// wait until the next one and leaves the bucket untouched.
func (rl *RateLimiter) reserve(client string, now time.Time) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > clientIdleTTL {
		for key, b := range rl.clients {
			if now.Sub(b.lastSeen) > clientIdleTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64), false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}
