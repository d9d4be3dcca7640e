package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tier is one token bucket applied to a client IP.
type Tier struct {
	Name  string
	Limit redis_rate.Limit
}

// DefaultTiers apply to every route: burst, sustained and hourly.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "burst", Limit: redis_rate.PerSecond(10)},
		{Name: "sustained", Limit: redis_rate.PerMinute(100)},
		{Name: "hourly", Limit: redis_rate.PerHour(1000)},
	}
}

// RateLimitMiddleware enforces per-IP token buckets backed by redis.
type RateLimitMiddleware struct {
	logs    *zap.SugaredLogger
	limiter *redis_rate.Limiter
	tiers   []Tier
}

func NewRateLimitMiddleware(logger *zap.SugaredLogger, client *redis.Client, tiers []Tier) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		logs:    logger,
		limiter: redis_rate.NewLimiter(client),
		tiers:   tiers,
	}
}

// Limit applies the default tiers.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.allow(w, r, m.tiers, "") {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Tighten adds a stricter per-route bucket on top of the default tiers;
// used for login (5/min), registration (3/min) and refresh (10/min).
func (m *RateLimitMiddleware) Tighten(route string, perMinute int, next http.HandlerFunc) http.HandlerFunc {
	tier := []Tier{{Name: route, Limit: redis_rate.PerMinute(perMinute)}}
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.allow(w, r, tier, route) {
			return
		}
		next(w, r)
	}
}

func (m *RateLimitMiddleware) allow(w http.ResponseWriter, r *http.Request, tiers []Tier, route string) bool {
	ip := clientIP(r)

	for _, tier := range tiers {
		key := fmt.Sprintf("ratelimit:%s:%s", tier.Name, ip)
		if route != "" {
			key = fmt.Sprintf("ratelimit:%s:%s:%s", route, tier.Name, ip)
		}

		result, err := m.limiter.Allow(r.Context(), key, tier.Limit)
		if err != nil {
			// redis being down must not take the API with it
			m.logs.Errorw("rate limiter unavailable", "error", err)
			return true
		}

		if result.Allowed == 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", result.RetryAfter.Seconds()))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return false
		}
	}

	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
