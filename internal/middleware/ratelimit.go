package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Callers of the control API are few (operator CLIs, dashboards, the
// occasional curl), so per-caller buckets stay small. Stale buckets are
// swept so a scan or a NAT churn doesn't grow the map forever.
const (
	bucketSweepEvery = 5 * time.Minute
	bucketStaleAfter = 10 * time.Minute
)

// RateLimitConfig tunes the per-caller token bucket in front of the
// control API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate per caller.
	RequestsPerSecond float64
	// Burst is how many requests a caller may issue back to back. CLI
	// status polls batch a few requests at once, so this should be >1.
	Burst int
}

// callerBucket pairs a caller's limiter with its last activity, for the
// stale sweep.
type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-caller token-bucket limit on the control
// API. Over-limit requests get 429 with a Retry-After hint; trigger and
// status endpoints behind it never see the excess traffic.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var buckets sync.Map // caller IP → *callerBucket

	go func() {
		for {
			time.Sleep(bucketSweepEvery)
			buckets.Range(func(key, value any) bool {
				if time.Since(value.(*callerBucket).lastSeen) > bucketStaleAfter {
					buckets.Delete(key)
				}
				return true
			})
		}
	}()

	bucketFor := func(ip string) *rate.Limiter {
		if v, ok := buckets.Load(ip); ok {
			b := v.(*callerBucket)
			b.lastSeen = time.Now()
			return b.limiter
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		buckets.Store(ip, &callerBucket{limiter: limiter, lastSeen: time.Now()})
		return limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := bucketFor(clientIP(r))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				writeTooManyRequests(w, 0)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				// Reject rather than queue; a stalled CLI poll is worse
				// than a retried one.
				reservation.Cancel()
				writeTooManyRequests(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the caller's address with the port stripped. Only
// RemoteAddr is consulted; X-Forwarded-For is caller-controlled and
// would let one caller spread its traffic across many buckets.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeTooManyRequests mirrors the control API's error envelope so CLI
// clients decode 429s the same way as any other error.
func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
