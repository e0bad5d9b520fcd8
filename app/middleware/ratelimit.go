package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"golang.org/x/time/rate"
)

const (
	defaultVisitorTTL      = 3 * time.Minute
	defaultCleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	metrics metrics.Recorder
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter(rps float64, burst int, recorder metrics.Recorder) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		metrics:  recorder,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Cleanup drops visitors idle for longer than ttl.
func (rl *RateLimiter) Cleanup(ttl time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > ttl {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run evicts idle visitors every minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(defaultVisitorTTL)
		}
	}
}

func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if rl.rps <= 0 {
				return next(ctx)
			}
			if !rl.limiterFor(ctx.RealIP()).Allow() {
				rl.metrics.IncRateLimited()
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.rps)))
				return ctx.JSON(http.StatusTooManyRequests, &types.ErrorResponse{Error: "too many requests"})
			}
			return next(ctx)
		}
	}
}

func retryAfterSeconds(rps rate.Limit) int {
	if rps >= 1 {
		return 1
	}
	return int(1/float64(rps)) + 1
}
