package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/bdougie/toxiclens/internal/metrics"
)

// NewRouter creates and configures the Gin router
func NewRouter(h *Handler, corsOrigins []string, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(Recovery(logger))
	router.Use(CORS(corsOrigins))

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/predict", h.Predict)
	router.POST("/analyze", h.Analyze)
	router.POST("/similar", h.Similar)

	return router
}
