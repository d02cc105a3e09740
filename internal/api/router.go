package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the handlers. gatherer backs /metrics; nil skips the endpoint.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "OpenClaw auto-apply API is running!",
			"status":  "healthy",
		})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", h.WebSocket)

	apps := router.Group("/api/applications")
	apps.POST("/queue", h.Queue)
	apps.GET("/:id", h.Get)
	apps.POST("/:id/retry", h.Retry)
	apps.POST("/:id/cancel", h.Cancel)
	apps.GET("/:id/attempts/:n/screenshots", h.Screenshots)
	apps.GET("/:id/attempts/:n/screenshots/:step", h.Screenshot)
	apps.GET("/:id/attempts/:n/logs", h.Logs)

	return router
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// keep scrapes and socket upgrades out of the log
		if c.FullPath() == "/metrics" || c.FullPath() == "/ws" {
			return
		}
		log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
