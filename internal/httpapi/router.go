package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/config"
	"github.com/kryote/support-chat/internal/httpapi/handlers"
	"github.com/kryote/support-chat/internal/httpapi/middleware"
	"github.com/kryote/support-chat/internal/identity"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/store/redisstore"
)

func NewRouter(cfg config.Config, h *handlers.Handler, resolver *identity.Resolver, rds *redisstore.Store, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSOrigins
	corsCfg.AllowCredentials = true
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/", h.Health)
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")

	// Login carries its own identity assertion; the session middleware would
	// get in its way (it must see the pre-login cookie untouched).
	api.POST("/auth/login", h.Login)

	cookie := middleware.CookieSettings{Name: cfg.CookieName, Secure: cfg.CookieSecure}
	sessionGroup := api.Group("/")
	sessionGroup.Use(middleware.Session(resolver, cookie, log))

	sessionGroup.GET("/me", h.Me)

	sessionGroup.GET("/chat/sessions", h.ListChatSessions)
	sessionGroup.POST("/chat/sessions", h.CreateChatSession)
	sessionGroup.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)

	rateLimited := sessionGroup.Group("/")
	rateLimited.Use(middleware.TurnRateLimit(rds, cfg.TurnRateLimit, cfg.TurnRateWindow, log))
	rateLimited.POST("/chat/messages", h.SendChatMessage)
	rateLimited.POST("/chat/messages/async", h.SendChatMessageAsync)

	sessionGroup.GET("/chat/jobs/:job_id", h.GetTurnJob)

	return r
}
