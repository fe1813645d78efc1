package http

import (
	"net/http"
	"time"

	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/internal/infrastructure/middleware"
	"uplinkpolicy/internal/infrastructure/monitoring"
	"uplinkpolicy/pkg/config"
	"uplinkpolicy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config    *config.Config
	Policies  ports.PolicyService
	Uplink    ports.UplinkService
	Auth      services.AuthService
	WebSocket ports.WebSocketHandler
	Health    *monitoring.HealthChecker
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *zap.SugaredLogger
}

// NewRouter wires the REST API, websocket endpoint and operational routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	startedAt := time.Now()

	cl := logger.NewContextLogger(deps.Logger.Desugar())

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(cl))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLogMiddleware(cl))
	router.Use(middleware.ErrorHandlerMiddleware(cl))
	router.Use(middleware.NewHTTPRateLimitMiddleware(deps.Config))

	api := router.Group("/api/v1")
	NewAuthHandler(deps.Auth).SetupRoutes(api)
	NewPolicyHandler(deps.Policies, deps.Auth, deps.Logger).SetupRoutes(api)
	NewUplinkHandler(deps.Uplink, deps.Policies, deps.Auth).SetupRoutes(api)

	if deps.WebSocket != nil {
		router.GET("/ws", gin.WrapF(deps.WebSocket.HandleWebSocket))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startedAt).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
			return
		}
		status := deps.Health.CheckAll(c.Request.Context())
		if !status.Healthy() {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
