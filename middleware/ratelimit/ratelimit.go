// Package ratelimit provides per-client request throttling middleware with a
// fixed-window counter. Tiers bundle the limits the accounts API uses:
// a broad general tier, a tight tier for credential endpoints, and a tighter
// one for password recovery.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Tier presets.
var (
	GeneralTier = Tier{Name: "general", Limit: 100, Window: 15 * time.Minute}
	AuthTier    = Tier{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	ResetTier   = Tier{Name: "reset", Limit: 3, Window: time.Hour}
)

// Tier is a named limit over a window.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Limiter decides whether a key may proceed within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	store   map[string]*fixedWindow
	cleanup time.Time
	now     func() time.Time
}

// NewLocalFixedWindowLimiter returns an in-process Limiter. Counters reset at
// window boundaries; stale entries are swept opportunistically on the next
// call after the cleanup horizon passes.
func NewLocalFixedWindowLimiter() Limiter {
	return newLocalLimiter(time.Now)
}

func newLocalLimiter(now func() time.Time) *localFixedWindowLimiter {
	return &localFixedWindowLimiter{
		store:   make(map[string]*fixedWindow),
		cleanup: now().Add(time.Minute),
		now:     now,
	}
}

func (rl *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		for k, v := range rl.store {
			if now.Sub(v.windowStart) > 2*window {
				delete(rl.store, k)
			}
		}
		rl.cleanup = now.Add(window)
	}

	entry, ok := rl.store[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		rl.store[key] = &fixedWindow{count: 1, windowStart: now}
		return true, 0, nil
	}

	if entry.count >= limit {
		retryAfter := window - now.Sub(entry.windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	entry.count++
	return true, 0, nil
}

// Config tunes the middleware.
type Config struct {
	Tier    Tier
	Limiter Limiter
	// KeyFunc derives the counter key from a request. Defaults to client IP.
	KeyFunc func(c *fiber.Ctx) string
}

// New returns fiber middleware enforcing the tier. The tier name is prefixed
// onto every key so tiers sharing one Limiter do not share counters.
func New(cfg Config) fiber.Handler {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLocalFixedWindowLimiter()
	}

	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientIPKey
	}

	tier := cfg.Tier
	if tier.Limit <= 0 || tier.Window <= 0 {
		tier = GeneralTier
	}

	return func(c *fiber.Ctx) error {
		key := tier.Name + ":" + keyFunc(c)

		allowed, retryAfter, err := limiter.Allow(c.Context(), key, tier.Limit, tier.Window)
		if err != nil {
			// fail closed
			c.Set(fiber.HeaderRetryAfter, retryAfterHeader(tier.Window))
			return tooManyRequests(c)
		}

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, retryAfterHeader(retryAfter))
			return tooManyRequests(c)
		}

		return c.Next()
	}
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"message": "too many requests",
		"code":    "RATE_LIMITED",
	})
}

func clientIPKey(c *fiber.Ctx) string {
	return c.IP()
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
