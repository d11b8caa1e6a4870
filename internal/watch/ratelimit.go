package watch

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const defaultRateLimit = 120

type tokenBucket struct {
	capacity   int
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= time.Minute {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

func (tb *tokenBucket) tryConsume() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// rateLimiter caps requests per remote address per minute. Buckets of idle
// addresses expire from the cache.
type rateLimiter struct {
	perMinute int
	buckets   *cache.Cache
	mu        sync.Mutex
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = defaultRateLimit
	}
	return &rateLimiter{
		perMinute: perMinute,
		buckets:   cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (rl *rateLimiter) bucket(addr string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if cached, found := rl.buckets.Get(addr); found {
		return cached.(*tokenBucket)
	}
	b := newTokenBucket(rl.perMinute)
	rl.buckets.Set(addr, b, cache.DefaultExpiration)
	return b
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.bucket(remoteHost(r)).tryConsume() {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Minute).Unix()))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
