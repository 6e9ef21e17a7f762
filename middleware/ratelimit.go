package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"
)

// RateLimiter allows each client IP a burst of max requests refilled evenly over window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	max      int
	window   time.Duration
	swept    time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*visitor), max: max, window: window}
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)}
		l.limiters[ip] = v
	}
	v.lastSeen = now

	// Forget idle clients. A full window of inactivity refills the bucket anyway.
	if now.Sub(l.swept) > l.window {
		for key, other := range l.limiters {
			if now.Sub(other.lastSeen) > l.window {
				delete(l.limiters, key)
			}
		}
		l.swept = now
	}
	return v.limiter
}

// Middleware answers 429 once a client exceeds its budget.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !l.limiter(ip).Allow() {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]string{"message": "Too many requests, please try again later."})
			return
		}
		next.ServeHTTP(w, r)
	})
}
