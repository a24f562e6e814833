package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/twofa/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// RegisterLimit guards record creation: 10 registrations a minute per client,
// 5 of them at once. Override with RATELIMIT_REGISTER_REQUESTS,
// RATELIMIT_REGISTER_WINDOW_SEC and RATELIMIT_REGISTER_BURST.
var RegisterLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             5,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_REGISTER_REQUESTS, RATELIMIT_REGISTER_WINDOW_SEC, RATELIMIT_REGISTER_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It trusts X-Forwarded-For and X-Real-IP, so only use it behind a proxy
// that overwrites those headers.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return RemoteAddrKeyExtractor(r)
}

// RemoteAddrKeyExtractor keys on the TCP peer address and ignores headers.
func RemoteAddrKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimiter hands out one token bucket per key.
type RateLimiter struct {
	config RateLimitConfig
	rate   rate.Limit

	limiters sync.Map // map[string]*rate.Limiter

	mu          sync.Mutex
	lastCleanup time.Time

	// OnLimited, when set, is called for every rejected request.
	OnLimited func(r *http.Request)
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:      config,
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		lastCleanup: time.Now(),
	}
}

// Allow takes a token for key. When none is left it reports how long until
// the next one is available.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	limiter := rl.limiter(key)
	if limiter.Allow() {
		return true, 0
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.config.Burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, at most every five minutes.
func (rl *RateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.config.Burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := rl.Allow(key)
			if !ok {
				retryAfter := max(int(delay.Seconds()), 1)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", rl.config.Window.String())

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)
				if rl.OnLimited != nil {
					rl.OnLimited(r)
				}

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
