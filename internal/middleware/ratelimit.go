package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"time"

	"hotspot-billing.com/platform/pkg/logger"
	"hotspot-billing.com/platform/pkg/redis"
)

type RateLimiter struct {
	redis  *redis.RedisClient
	logger *logger.Logger
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.RedisClient, l *logger.Logger, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		logger: l,
		limit:  limit,
		window: window,
	}
}

// Middleware limits requests per API key, or per client IP when no bearer
// token is sent. Redis failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.redis == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ip:" + ClientIP(r)
		if token, err := ExtractBearerToken(r.Header.Get("Authorization")); err == nil {
			sum := sha256.Sum256([]byte(token))
			key = "ratelimit:key:" + hex.EncodeToString(sum[:8])
		}

		allowed, retryAfter, err := rl.redis.CheckRateLimit(r.Context(), key, rl.limit, rl.window)
		if err != nil {
			rl.logger.Warn("Rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Rate limit exceeded. Please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of r.RemoteAddr. Run RealIP first when the
// service sits behind a reverse proxy.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
