package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
	"golang.org/x/time/rate"
)

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = time.Hour
)

// callerLimits holds one token bucket per caller. Buckets idle for longer
// than idleAfter are dropped on the next sweep.
type callerLimits struct {
	cfg config.RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newCallerLimits(cfg config.RateLimitConfig) *callerLimits {
	return &callerLimits{
		cfg:       cfg,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// reserve takes a token for caller. When none is available it reports how
// long the caller should wait.
func (l *callerLimits) reserve(caller string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[caller]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return 0, false
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return wait, false
	}
	return 0, true
}

// RateLimit returns per-caller token-bucket rate limiting. The caller is the
// API key set by Auth, or the client IP when auth is off. Rejected requests
// get 429 with a Retry-After header.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limits := newCallerLimits(cfg)

	return func(c *gin.Context) {
		caller := c.GetString(KeyContext)
		if caller == "" {
			caller = c.ClientIP()
		}

		wait, ok := limits.reserve(caller)
		if !ok {
			if wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}
