package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorLimiter keeps a token-bucket limiter per client IP and evicts
// buckets that have been quiet for a while.
type visitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	b        int
}

func newVisitorLimiter(r rate.Limit, b int) *visitorLimiter {
	vl := &visitorLimiter{
		visitors: make(map[string]*visitor),
		r:        r,
		b:        b,
	}
	go vl.evictLoop()
	return vl
}

func (vl *visitorLimiter) allow(ip string) bool {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	v, ok := vl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(vl.r, vl.b)}
		vl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (vl *visitorLimiter) evictLoop() {
	for range time.Tick(time.Minute) {
		vl.mu.Lock()
		for ip, v := range vl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(vl.visitors, ip)
			}
		}
		vl.mu.Unlock()
	}
}

// RateLimiter is a middleware for per-IP rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	vl := newVisitorLimiter(r, b)
	return func(c *gin.Context) {
		if !vl.allow(c.ClientIP()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
