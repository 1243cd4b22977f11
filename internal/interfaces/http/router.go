// Package http serves the admin surface of ridsync: probes, Prometheus
// metrics and read-only run state.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/interfaces/http/handlers"
	"github.com/turtacn/rid-registry/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the dependencies of the route tree.  Nil handlers
// leave their routes unmounted.
type RouterConfig struct {
	Mode          string
	HealthHandler *handlers.HealthHandler
	RunHandler    *handlers.RunHandler

	MetricsHandler http.Handler
	MetricsPath    string
	HTTPObserver   middleware.HTTPObserver

	Logger logging.Logger
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	if cfg.HTTPObserver != nil {
		r.Use(middleware.Metrics(cfg.HTTPObserver))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET(cfg.MetricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/v1")
	if cfg.RunHandler != nil {
		v1.GET("/runs/last", cfg.RunHandler.LastRun)
		v1.GET("/snapshots", cfg.RunHandler.ListSnapshots)
	}
	return r
}
