package ratelim

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"festa/rdx"
	"festa/utils"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

// Policy is one fixed-window budget, keyed per client.
type Policy struct {
	Name   string // key prefix, e.g. "weeklycal-checkin"
	Limit  int    // requests per window
	Window time.Duration
}

// Check-in gets a strict budget (token guessing defense); registration
// writes get a looser one.
var (
	CheckinPolicy  = Policy{Name: "weeklycal-checkin", Limit: 10, Window: time.Minute}
	RegisterPolicy = Policy{Name: "weeklycal-register", Limit: 30, Window: time.Minute}
)

// RateLimiter enforces fixed windows in redis when available and falls back
// to per-key token buckets in process.
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
	}
}

// Limit wraps a handler with the given policy. Exceeding the window returns
// 429; the caller retries later.
func (rl *RateLimiter) Limit(p Policy, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		key := p.Name + ":" + clientIP(r)
		if !rl.allow(r, p, key) {
			utils.RespondWithJSON(w, http.StatusTooManyRequests, utils.M{
				"errorCode": "RATE_LIMITED",
				"error":     "Too many requests, try later",
			})
			return
		}
		next(w, r, ps)
	}
}

func (rl *RateLimiter) allow(r *http.Request, p Policy, key string) bool {
	if rdx.Conn != nil {
		// fixed window: INCR, set the TTL on the first hit of the window
		count, err := rdx.Conn.Incr(r.Context(), "ratelim:"+key).Result()
		if err == nil {
			if count == 1 {
				rdx.Conn.Expire(r.Context(), "ratelim:"+key, p.Window)
			}
			return count <= int64(p.Limit)
		}
		// redis hiccup: fall through to the in-process limiter
	}
	return rl.getLimiter(p, key).Allow()
}

// Get or create the in-process limiter for a key
func (rl *RateLimiter) getLimiter(p Policy, key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.visitors[key]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rate.Limit(float64(p.Limit)/p.Window.Seconds()), p.Limit)
	rl.visitors[key] = limiter

	// Clean up idle keys after 10 minutes
	go func() {
		time.Sleep(10 * time.Minute)
		rl.mu.Lock()
		delete(rl.visitors, key)
		rl.mu.Unlock()
	}()

	return limiter
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return fmt.Sprint(r.RemoteAddr)
	}
	return host
}
