package http

import (
	"net/http"
	"sync"

	"github.com/fjod/helmet-storefront/pkg/logger"
	"golang.org/x/time/rate"
)

// CouponLimiter caps coupon attempts per browser session.
type CouponLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewCouponLimiter(perMinute int) *CouponLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &CouponLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *CouponLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Prune drops limiters that have refilled completely.
func (l *CouponLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

func (l *CouponLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFromContext(r.Context())
		if ok && !l.Allow(s.Key) {
			logger.Ctx(r.Context()).Warn().Str("checkout", s.Key).Msg("coupon attempts rate limited")
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many coupon attempts, try again in a minute")
			return
		}
		next.ServeHTTP(w, r)
	})
}
