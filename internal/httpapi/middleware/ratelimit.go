package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/store/redisstore"
)

// TurnRateLimit throttles turn submissions per user with a fixed redis
// window. A redis outage fails open: throttling is protection, not a
// correctness requirement, and must not take chat down with it.
func TurnRateLimit(rds *redisstore.Store, limit int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := UserIDFromContext(c)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}

		allowed, err := rds.AllowTurn(c.Request.Context(), uid, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable, failing open",
				"request_id", c.GetString(RequestIDKey), "error", err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42900, "too many messages, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
