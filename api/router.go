package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/api/handler"
	"github.com/use-agent/dealscout/api/middleware"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/deals"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. pool may be
// nil when no site renders through the browser.
func NewRouter(svc *deals.Service, pool handler.PoolSource, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(pool, cfg.SiteNames(), startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/deals", handler.Deals(svc))

	return r
}
