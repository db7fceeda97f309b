package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/experiment-backend/internal/db"
	"github.com/yungbote/experiment-backend/internal/handlers"
	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/middleware"
	"github.com/yungbote/experiment-backend/internal/observability"
	"github.com/yungbote/experiment-backend/internal/realtime/bus"
	"github.com/yungbote/experiment-backend/internal/repos"
	"github.com/yungbote/experiment-backend/internal/server"
	"github.com/yungbote/experiment-backend/internal/services"
	"github.com/yungbote/experiment-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "experiment-backend",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	allowedOrigins := strings.Split(utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", log), ",")

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	experimentRepo := repos.NewExperimentRepo(thePG, log)
	participantRepo := repos.NewParticipantRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)

	// Notification bus
	log.Info("Setting up experiment bus from main...")
	var experimentBus bus.Bus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		experimentBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Warn("Redis bus init failed, falling back to local bus", "error", err)
			experimentBus = bus.NewLocalBus()
		}
	} else {
		experimentBus = bus.NewLocalBus()
	}
	defer experimentBus.Close()

	// Engine
	log.Info("Setting up ExperimentEngine from main...")
	engine := services.NewExperimentEngine(
		thePG,
		log,
		experimentRepo,
		participantRepo,
		eventRepo,
		services.NewBusNotifier(experimentBus),
	)
	if err := engine.LoadActiveExperiments(context.Background()); err != nil {
		log.Warn("Could not load active experiments, starting with empty active set", "error", err)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	experimentHandler := handlers.NewExperimentHandler(engine)
	assignmentHandler := handlers.NewAssignmentHandler(engine)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:       "experiment-backend",
		AllowedOrigins:    allowedOrigins,
		ExperimentHandler: experimentHandler,
		AssignmentHandler: assignmentHandler,
		AuthMiddleware:    authMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
