package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// staleWindows is how many windows behind the current one a counter may lag
// before eviction drops it.
const staleWindows = 5

// counterKey identifies one client IP within one fixed window.
type counterKey struct {
	ip     string
	window int64
}

// RateLimiter counts requests per client IP over fixed windows and rejects
// requests above the limit with 429. All state lives on the struct; reset is
// implicit in the window index baked into each counter key, and stale keys
// are evicted once the map grows past maxKeys.
type RateLimiter struct {
	mu      sync.Mutex
	counts  map[counterKey]int
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time
}

// NewRateLimiter creates a per-IP fixed-window rate limiter allowing `limit`
// requests per `window`.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:  make(map[counterKey]int),
		limit:   limit,
		window:  window,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Handler returns the fiber middleware handler.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		idx := rl.now().UnixNano() / int64(rl.window)
		key := counterKey{ip: ClientIP(c), window: idx}

		rl.mu.Lock()
		rl.counts[key]++
		over := rl.counts[key] > rl.limit
		if len(rl.counts) > rl.maxKeys {
			rl.evictStale(idx)
		}
		rl.mu.Unlock()

		if over {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

// evictStale drops counters older than staleWindows windows. Caller holds the lock.
func (rl *RateLimiter) evictStale(current int64) {
	for key := range rl.counts {
		if key.window < current-staleWindows {
			delete(rl.counts, key)
		}
	}
}
