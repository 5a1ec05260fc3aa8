package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/MosTaFa-Abdulrahman/attend-api/api/swagger"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/handler"
	internalmiddleware "github.com/MosTaFa-Abdulrahman/attend-api/internal/middleware"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/repository"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/service"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/cache"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/config"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/database"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/logger"
	corsmiddleware "github.com/MosTaFa-Abdulrahman/attend-api/pkg/middleware/cors"
	reqidmiddleware "github.com/MosTaFa-Abdulrahman/attend-api/pkg/middleware/requestid"
)

// @title Attend API
// @version 1.0.0
// @description QR attendance tracker for schools
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The today-cache degrades to direct reads without Redis.
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db)
	userRepo := repository.NewUserRepository(db)
	degreeRepo := repository.NewDegreeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	attendanceSvc := service.NewAttendanceService(sessionRepo, cacheRepo, metricsSvc, validate, logr, cfg.Attendance)
	userSvc := service.NewUserService(userRepo, validate, logr)
	degreeSvc := service.NewDegreeService(degreeRepo, userRepo, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.Register(api, handler.Deps{
		Auth:       authSvc,
		Attendance: handler.NewAttendanceHandler(attendanceSvc, metricsSvc),
		AuthH:      handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Degrees:    handler.NewDegreeHandler(degreeSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
