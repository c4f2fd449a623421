package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

type visitor struct {
	limiter *rate.Limiter
	expires time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewIPRateLimiter allows perMinute requests per IP with a burst of half that.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	perMinute = max(perMinute, 1)
	return &IPRateLimiter{
		visitors: map[string]*visitor{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
	}
}

// Allow reports whether ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.visitors {
		if now.After(v.expires) {
			delete(l.visitors, key)
		}
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.expires = now.Add(limiterIdleTTL)
	return v.limiter.AllowN(now, 1)
}

// RateLimit rejects requests over the per-IP budget. The onLimited handler
// writes the response, so HTML forms can render their own page.
func RateLimit(l *IPRateLimiter, onLimited gin.HandlerFunc) gin.HandlerFunc {
	if onLimited == nil {
		onLimited = func(c *gin.Context) {
			c.String(http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			onLimited(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
