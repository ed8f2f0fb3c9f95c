package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/chat"
	"github.com/geekpunk/CareCompassConcept/internal/files"
	"github.com/geekpunk/CareCompassConcept/internal/patients"
	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/config"
	"github.com/geekpunk/CareCompassConcept/internal/shared/metrics"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
)

// RouterDeps carries the built handlers the router mounts.
type RouterDeps struct {
	Config   config.Config
	Verifier auth.Verifier
	Patients *patients.Handler
	Files    *files.Handler
	Chat     *chat.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Verifier),
	)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "CareCompass Backend is Running!")
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	registerMeRoutes(api)
	deps.Patients.RegisterRoutes(api)
	deps.Files.RegisterRoutes(api)
	deps.Chat.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":5000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
