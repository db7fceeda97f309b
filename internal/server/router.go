package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/experiment-backend/internal/handlers"
	"github.com/yungbote/experiment-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName       string
	AllowedOrigins    []string
	ExperimentHandler *handlers.ExperimentHandler
	AssignmentHandler *handlers.AssignmentHandler
	AuthMiddleware    *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "experiment-backend"
	}
	router.Use(otelgin.Middleware(serviceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Public traffic surface used by the site render path.
	api := router.Group("/api")
	{
		api.POST("/assign", cfg.AssignmentHandler.Assign)
		api.POST("/events", cfg.AssignmentHandler.Track)
		api.GET("/experiments/:id/variants/:variantId/content", cfg.AssignmentHandler.VariantContent)
	}

	// Admin surface: lifecycle and results.
	admin := router.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/experiments", cfg.ExperimentHandler.Create)
		admin.GET("/experiments", cfg.ExperimentHandler.List)
		admin.GET("/experiments/:id", cfg.ExperimentHandler.Get)
		admin.POST("/experiments/:id/start", cfg.ExperimentHandler.Start)
		admin.POST("/experiments/:id/pause", cfg.ExperimentHandler.Pause)
		admin.POST("/experiments/:id/complete", cfg.ExperimentHandler.Complete)
		admin.GET("/experiments/:id/results", cfg.ExperimentHandler.Results)
	}

	return router
}
