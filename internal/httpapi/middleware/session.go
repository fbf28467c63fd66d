package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/identity"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/models"
)

const (
	UserIDKey = "user_id"
	UserKey   = "user"
)

type CookieSettings struct {
	Name   string
	Secure bool
}

// Session resolves the request's cookie into a user, minting an anonymous
// identity on first contact, and applies any cookie rewrite the resolver
// asks for. A present-but-invalid cookie is a hard 401: the client must
// restart its session rather than silently lose history.
func Session(resolver *identity.Resolver, cookie CookieSettings, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookie.Name)
		if err != nil {
			raw = ""
		}

		user, _, update, err := resolver.Resolve(c.Request.Context(), raw, nil)
		if err != nil {
			if errors.Is(err, identity.ErrSessionInvalid) {
				common.Fail(c, http.StatusUnauthorized, 40102, "session invalid, please restart your session")
				c.Abort()
				return
			}
			log.Error("session resolve failed",
				"request_id", c.GetString(RequestIDKey), "error", err)
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
			c.Abort()
			return
		}

		if update != nil {
			ApplyCookie(c, cookie, update)
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, user)
		c.Next()
	}
}

func ApplyCookie(c *gin.Context, cookie CookieSettings, update *identity.CookieUpdate) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookie.Name, update.Value, int(update.MaxAge.Seconds()), "/", "", cookie.Secure, true)
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}
