package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/surgitrack-api/api/swagger"
	"github.com/noah-isme/surgitrack-api/internal/handler"
	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/middleware"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/repository"
	"github.com/noah-isme/surgitrack-api/internal/service"
	"github.com/noah-isme/surgitrack-api/pkg/assistant"
	"github.com/noah-isme/surgitrack-api/pkg/cache"
	"github.com/noah-isme/surgitrack-api/pkg/config"
	"github.com/noah-isme/surgitrack-api/pkg/database"
	"github.com/noah-isme/surgitrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/surgitrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/surgitrack-api/pkg/middleware/requestid"
	"github.com/noah-isme/surgitrack-api/pkg/notify"
)

// @title SurgiTrack API
// @version 1.0.0
// @description Surgery status tracking with role-gated patient lookup
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo *repository.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, lookup cache disabled", zap.Error(err))
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Lookup.CacheTTL, logr, cfg.Lookup.CacheEnabled && cacheRepo != nil)

	patientRepo := repository.NewPatientRepository(db)
	userRepo := repository.NewUserRepository(db)

	var publisher *notify.MQTTPublisher
	if cfg.Notifications.Enabled {
		publisher, err = notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:      cfg.Notifications.Broker,
			ClientID:    cfg.Notifications.ClientID,
			Username:    cfg.Notifications.Username,
			Password:    cfg.Notifications.Password,
			TopicPrefix: cfg.Notifications.TopicPrefix,
		}, logr)
		if err != nil {
			logr.Warn("mqtt unavailable, status notifications disabled", zap.Error(err))
		} else {
			defer publisher.Close()
		}
	}
	var notifications *service.NotificationService
	if publisher != nil {
		notifications = service.NewNotificationService(publisher, service.NotificationConfig{
			Workers: cfg.Notifications.Workers,
			Retries: cfg.Notifications.Retries,
		}, metrics, logr)
		notifications.Start(ctx)
		defer notifications.Stop()
	}

	directory := service.NewPatientDirectory(patientRepo, cacheSvc, metrics, cfg.Lookup.CacheTTL)
	responder := lookup.NewResponder(directory, logr, lookup.WithObserver(metrics))

	var lookupOpts []service.LookupServiceOption
	if cfg.Assistant.Enabled {
		lookupOpts = append(lookupOpts, service.WithReplyGenerator(assistant.NewClient(assistant.Config{
			BaseURL: cfg.Assistant.BaseURL,
			APIKey:  cfg.Assistant.APIKey,
			Model:   cfg.Assistant.Model,
			Timeout: cfg.Assistant.Timeout,
			Retries: 1,
		}, logr)))
	}

	createMinRole := models.Role(cfg.Patients.CreateMinRole)
	if !createMinRole.Valid() {
		if cfg.Patients.CreateMinRole != "" {
			logr.Warn("unknown PATIENT_CREATE_MIN_ROLE, falling back to admin", zap.String("value", cfg.Patients.CreateMinRole))
		}
		createMinRole = models.RoleAdmin
	}

	patientOpts := []service.PatientServiceOption{
		service.WithDirectoryInvalidator(directory),
		service.WithPatientMetrics(metrics),
	}
	if notifications != nil {
		patientOpts = append(patientOpts, service.WithStatusNotifier(notifications))
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	patientSvc := service.NewPatientService(patientRepo, userRepo, validate, logr, service.PatientServiceConfig{
		CreateMinRole:   createMinRole,
		CodeMaxAttempts: cfg.Patients.CodeMaxAttempts,
		ImportMaxRows:   cfg.Import.MaxRows,
	}, patientOpts...)
	lookupSvc := service.NewLookupService(lookup.NewClassifier(), responder, validate, logr, lookupOpts...)
	boardSvc := service.NewStatusBoardService(patientRepo, logr)

	dependents := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if cacheRepo != nil {
		dependents["redis"] = cacheRepo
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, logger.WithActor(middleware.ActorFields)))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	registerRoutes(r, routeConfig{prefix: cfg.APIPrefix, createMinRole: createMinRole}, routeHandlers{
		auth:     handler.NewAuthHandler(authSvc),
		patients: handler.NewPatientHandler(patientSvc),
		lookup:   handler.NewLookupHandler(lookupSvc),
		board:    handler.NewStatusBoardHandler(boardSvc),
		metrics:  handler.NewMetricsHandler(metrics, dependents),
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
