package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
)

// Pinger is the narrow health-check seam the /health route depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the gin engine for C13's HTTP surface: dispatch, status
// read, SSE and WebSocket streams, plus health and Prometheus metrics.
func NewRouter(handlers *Handlers, auth *AuthMiddleware, log *logger.Logger, db Pinger, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	recovery := NewRecoveryMiddleware(log)
	logging := NewLoggingMiddleware(log)
	router.Use(recovery.Recovery())
	router.Use(logging.RequestLogger())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", auth.RequireAPIKey(), handlers.HandleWebSocket)

	v1 := router.Group("/v1")
	{
		requests := v1.Group("/requests")
		{
			requests.POST("/:id/dispatch", handlers.HandleDispatch)
			requests.GET("/:id", handlers.HandleGetRequest)
			requests.GET("/:id/events", auth.RequireAPIKey(), handlers.HandleEvents)
		}
	}

	return router
}
