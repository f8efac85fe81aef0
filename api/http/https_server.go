package http

import (
	"strings"

	"SecAssist/internal/config"
	jwtMiddleware "SecAssist/internal/middleware/jwt"
	aiHandler "SecAssist/internal/modules/ai/interface/http"
	"SecAssist/pkg/ssl"
	"SecAssist/pkg/util/myjwt"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers everything the router mounts
type Handlers struct {
	Assistant *aiHandler.AssistantHandler
	Query     *aiHandler.QueryHandler
	Privacy   *aiHandler.PrivacyHandler
	Gatherer  prometheus.Gatherer // backs /metrics; nil skips the route
}

// NewRouter builds the gin engine
func NewRouter(conf *config.Config, h Handlers) *gin.Engine {
	GE := gin.New()
	GE.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.Handler(ssl.Options{
		Host:     conf.MainConfig.Host,
		Port:     conf.MainConfig.Port,
		Redirect: strings.TrimSpace(conf.MainConfig.TLSCert) != "",
		DevMode:  gin.Mode() == gin.DebugMode,
	}))

	GE.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if h.Gatherer != nil {
		GE.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth(myjwt.Options{
		Key:         conf.JwtConfig.Key,
		ExpireHours: conf.JwtConfig.ExpireHours,
		Issuer:      conf.JwtConfig.Issuer,
	}))
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString(jwtMiddleware.ContextUserKey),
			"username": c.GetString("username"),
		})
	})

	if h.Assistant != nil {
		authed.POST("/assistant/process", h.Assistant.Process)
		authed.POST("/assistant/session/close", h.Assistant.CloseSession)
		authed.POST("/assistant/session/messages", h.Assistant.SessionMessages)
	}
	if h.Query != nil {
		authed.POST("/assistant/search", h.Query.Search)
	}
	if h.Privacy != nil {
		authed.POST("/privacy/deleteUser", h.Privacy.DeleteUser)

		admin := authed.Group("/admin")
		admin.Use(jwtMiddleware.RequireAdmin(conf.JwtConfig.AdminUsers))
		admin.POST("/retention/apply", h.Privacy.ApplyRetention)
		admin.POST("/session/reindex", h.Privacy.ReindexSession)
	}
	return GE
}
