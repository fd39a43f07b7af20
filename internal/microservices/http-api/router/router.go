package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/http-api/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the admin API engine.
// gatherer backs GET /metrics; nil selects prometheus.DefaultGatherer.
func New(srv handler.ServerController, gatherer prometheus.Gatherer, logger *slog.Logger) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/check-conn", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message":    "admin API is alive",
			"tcp_status": srv.State().String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := handler.NewServerHandler(srv, logger)
	h.RegisterRoutes(r.Group("/api/server"))
	return r
}

// requestLogger replaces gin.Logger so HTTP access logs share the process slog handler.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
