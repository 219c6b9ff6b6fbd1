package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// RateLimiter is a fixed-window limiter keyed by candidate, shared by every
// server instance through Redis.
type RateLimiter struct {
	rdb      *redis.Client
	rate     int           // Requests per window
	interval time.Duration // Window length
	now      func() time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute).
func NewRateLimiter(rdb *redis.Client, rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, rate: rate, interval: interval, now: time.Now}
}

// Middleware returns a Gin middleware that rate-limits requests by candidate.
// It must run after RequireCandidateJWT. Redis errors fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		window := rl.now().UnixNano() / int64(rl.interval)
		key := config.CacheKey.StartRateKey(claims.UserID, window)

		var incr *redis.IntCmd
		_, err := rl.rdb.TxPipelined(c.Request.Context(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.Request.Context(), key)
			pipe.Expire(c.Request.Context(), key, rl.interval)
			return nil
		})
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Rate limiter unavailable")
			c.Next()
			return
		}

		if incr.Val() > int64(rl.rate) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Next()
	}
}
