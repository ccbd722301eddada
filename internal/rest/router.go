package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/dfryer1193/evstations/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// NewRouter builds the gin engine with logging, panic recovery, health and metrics routes.
func NewRouter(stations *StationsHandler, db Pinger, gatherer prometheus.Gatherer, maxUploadBytes int64) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxUploadBytes
	router.Use(middleware.LoggingMiddleware("/healthz", "/metrics"))
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			abort(c, http.StatusServiceUnavailable, err)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	stations.RegisterRoutes(router)
	return router
}
