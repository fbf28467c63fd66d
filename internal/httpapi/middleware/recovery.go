package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/logger"
)

// Recovery converts a handler panic into the standard failure envelope
// instead of gin's default empty 500.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(RequestIDKey),
				)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
