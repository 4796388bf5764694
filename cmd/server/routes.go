package main

import (
	"html/template"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/frontend"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/middleware"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/monitoring"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/ratelimit"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/security"
)

// serverDeps is everything the router needs
type serverDeps struct {
	runner      *app.Runner
	tmpl        *template.Template
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	limiter     *ratelimit.RateLimiter
	hardening   security.Config
	corsOrigins []string
	compressor  *middleware.Compressor
}

func newRouter(d serverDeps) *gin.Engine {
	r := gin.New()

	r.Use(monitoring.MonitoringMiddleware(d.metrics, d.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(d.logger))
	if d.compressor != nil {
		r.Use(d.compressor.Handler())
	}
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  d.corsOrigins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(security.SecurityHeadersMiddleware(d.hardening.EnableHSTS))

	api := newAPI(d.runner, d.metrics, d.logger, d.limiter, d.compressor)

	r.GET("/health", api.health)
	r.GET("/metrics", api.stats)

	guarded := r.Group("/")
	guarded.Use(security.RequestTimeout(d.hardening.RequestTimeout))
	guarded.Use(security.LimitBody(d.hardening.MaxBodyBytes))
	guarded.Use(security.ValidateContentType())
	guarded.Use(d.limiter.IPRateLimitMiddleware())

	page := frontend.NewPageHandler(d.runner, d.tmpl)
	pages := guarded.Group("/")
	pages.Use(security.CSPMiddleware(d.hardening.CSPReportURI))
	pages.GET("/", page.Get)
	pages.POST("/", page.Post)

	v1 := guarded.Group("/api/v1")
	v1.GET("/schema", api.schema)
	v1.POST("/sessions", api.createSession)
	v1.DELETE("/sessions/:id", api.deleteSession)
	v1.POST("/sessions/:id/events", api.postEvent)

	return r
}
