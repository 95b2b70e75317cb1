package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /v1 endpoints with the given router group.
//
//	POST   /v1/signals                   compute a signal and run guardrails
//	GET    /v1/services/:id/index        latest resilience index
//	GET    /v1/services/:id/signals      retained signals, newest first
//	GET    /v1/alerts                    accumulating and firing alerts
//	DELETE /v1/alerts/:id                resolve an alert
//	GET    /v1/status                    store snapshot
//	GET    /v1/notifications             recent guardrail notifications
//	GET    /v1/notifications/stats       bus counters
//	GET    /v1/notifications/stream      websocket notification feed
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.POST("/signals", h.HandleComputeSignals)
	rg.GET("/services/:id/index", h.HandleGetIndex)
	rg.GET("/services/:id/signals", h.HandleGetSignals)
	rg.GET("/alerts", h.HandleListAlerts)
	rg.DELETE("/alerts/:id", h.HandleResolveAlert)
	rg.GET("/status", h.HandleStatus)
	rg.GET("/notifications", h.HandleRecentNotifications)
	rg.GET("/notifications/stats", h.HandleNotificationStats)
	rg.GET("/notifications/stream", h.HandleNotificationStream)
}

// NewRouter assembles the HTTP surface: /healthz, /metrics and the /v1 API.
// metricsHandler may be nil.
func NewRouter(logger *slog.Logger, h *Handlers, metricsHandler http.Handler, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if serviceName != "" {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(requestLogger(logger))

	router.GET("/healthz", h.HandleHealth)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
