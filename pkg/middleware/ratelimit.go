/**
 * @description
 * Rate limiting middleware for the mutating account endpoints. Uses a
 * fixed-window counter in Redis so the limit holds across replicas; a nil
 * client disables limiting entirely.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua script support.
 */
package middleware

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter implements distributed fixed-window rate limiting on Redis.
// The client is any redis.Scripter, which *redis.Client satisfies.
type RateLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a rate limiter. client may be nil, which disables
// limiting.
func NewRateLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "bank_linking:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// consume increments the counter for subject and reports whether the request
// is within the limit, along with a retry-after hint when it is not.
func (rl *RateLimiter) consume(r *http.Request, subject string) (allowed bool, retryAfterSeconds int) {
	if rl == nil || rl.client == nil || rl.limit <= 0 || rl.window <= 0 || subject == "" {
		return true, 0
	}

	windowMs := rl.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s", rl.prefix, subject)
	rawResult, err := rateLimitScript.Run(r.Context(), rl.client, []string{key}, windowMs).Result()
	if err != nil {
		// Fail open: losing the limiter must not take the API down.
		log.Printf("WARN: rate limiter unavailable: %v", err)
		return true, 0
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		log.Printf("WARN: unexpected rate limiter response shape: %T", rawResult)
		return true, 0
	}
	count, ok := values[0].(int64)
	if !ok {
		return true, 0
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	if int(count) <= rl.limit {
		return true, 0
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// RateLimit limits requests per authenticated customer, falling back to the
// remote address before authentication has run.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetCustomerIDFromContext(r.Context())
			if subject == "" {
				subject = r.RemoteAddr
			}
			allowed, retryAfter := limiter.consume(r, subject)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
