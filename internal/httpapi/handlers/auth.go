package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/httpapi/middleware"
)

type loginReq struct {
	IDToken string `json:"id_token" binding:"required"`
}

// Login consumes the identity provider's assertion, resolves (and if needed
// migrates) the identity, and rewrites the session cookie to authenticated
// form. Migration failure never surfaces here; the resolver absorbs it.
func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	assertion, err := h.Verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "invalid identity token")
		return
	}

	raw, cerr := c.Cookie(h.Cfg.CookieName)
	if cerr != nil {
		raw = ""
	}

	user, _, update, err := h.Resolver.Resolve(c.Request.Context(), raw, assertion)
	if err != nil {
		h.Log.Error("login resolve failed", "subject", assertion.Subject, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if update != nil {
		middleware.ApplyCookie(c, middleware.CookieSettings{
			Name:   h.Cfg.CookieName,
			Secure: h.Cfg.CookieSecure,
		}, update)
	}

	common.OK(c, gin.H{
		"user_id":      user.ID,
		"email":        user.Email,
		"is_anonymous": user.IsAnonymous,
	})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, gin.H{
		"user_id":      user.ID,
		"email":        user.Email,
		"is_anonymous": user.IsAnonymous,
	})
}
