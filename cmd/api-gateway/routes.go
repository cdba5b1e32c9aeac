package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/handler"
	"github.com/noah-isme/surgitrack-api/internal/middleware"
	"github.com/noah-isme/surgitrack-api/internal/models"
)

type routeHandlers struct {
	auth     *handler.AuthHandler
	patients *handler.PatientHandler
	lookup   *handler.LookupHandler
	board    *handler.StatusBoardHandler
	metrics  *handler.MetricsHandler
}

type routeConfig struct {
	prefix        string
	createMinRole models.Role
}

func registerRoutes(r *gin.Engine, cfg routeConfig, h routeHandlers, tokens middleware.TokenValidator) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	api := r.Group(cfg.prefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", h.auth.Login)
	api.GET("/auth/me", middleware.JWT(tokens), h.auth.Me)

	api.GET("/statuses", h.lookup.Statuses)
	api.GET("/status-board", h.board.Board)

	open := api.Group("")
	open.Use(middleware.OptionalJWT(tokens))
	open.GET("/lookup/:code", h.lookup.Lookup)
	open.POST("/chat", h.lookup.Chat)
	open.POST("/transitions/authorize", h.lookup.AuthorizeTransition)

	patients := api.Group("/patients")
	patients.Use(middleware.OptionalJWT(tokens))
	patients.POST("", middleware.RequireMinRole(cfg.createMinRole), h.patients.Create)
	patients.POST("/status-import", middleware.RequireMinRole(models.RoleSurgicalTeam), h.patients.ImportStatuses)
	patients.POST("/codes/backfill", middleware.RequireMinRole(models.RoleAdmin), h.patients.BackfillCodes)
	patients.PATCH("/:id/status", middleware.RequireMinRole(models.RoleSurgicalTeam), h.patients.ChangeStatus)
	patients.PATCH("/by-code/:code/status", middleware.RequireMinRole(models.RoleSurgicalTeam), h.patients.ChangeStatusByCode)

	admin := patients.Group("")
	admin.Use(middleware.RequireMinRole(models.RoleAdmin))
	admin.GET("", h.patients.List)
	admin.GET("/:id", h.patients.Get)
	admin.PUT("/:id", h.patients.Update)
	admin.DELETE("/:id", h.patients.Delete)
}
