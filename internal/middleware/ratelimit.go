package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimit allows each caller one request per every, with bursts up to
// burst. Callers are keyed by Firebase UID when authenticated, else by IP.
func RateLimit(every time.Duration, burst int) gin.HandlerFunc {
	return newRateLimiter(every, burst, time.Now).handle
}

type rateLimiter struct {
	every time.Duration
	burst int
	// idle is how long a bucket takes to refill completely. A caller silent
	// that long is indistinguishable from a new one, so its entry is dropped.
	idle      time.Duration
	now       func() time.Time
	limiters  sync.Map
	lastSweep atomic.Int64
}

func newRateLimiter(every time.Duration, burst int, now func() time.Time) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &rateLimiter{every: every, burst: burst, idle: every * time.Duration(burst), now: now}
	rl.lastSweep.Store(now().UnixNano())
	return rl
}

func (rl *rateLimiter) handle(c *gin.Context) {
	if rl.every <= 0 {
		c.Next()
		return
	}
	key := UserID(c.Request.Context())
	if key == "" {
		key = c.ClientIP()
	}

	now := rl.now()
	rl.sweep(now)
	v, _ := rl.limiters.LoadOrStore(key, &callerLimiter{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)})
	entry := v.(*callerLimiter)
	entry.lastSeen.Store(now.UnixNano())

	if !entry.limiter.AllowN(now, 1) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.every.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}
	c.Next()
}

// sweep drops idle callers at most once per idle period.
func (rl *rateLimiter) sweep(now time.Time) {
	last := rl.lastSweep.Load()
	if now.UnixNano()-last < int64(rl.idle) || !rl.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-rl.idle).UnixNano()
	rl.limiters.Range(func(k, v any) bool {
		if v.(*callerLimiter).lastSeen.Load() < cutoff {
			rl.limiters.Delete(k)
		}
		return true
	})
}
