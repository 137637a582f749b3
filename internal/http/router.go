package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/civiclens/backend/internal/config"
	"github.com/civiclens/backend/internal/db"
	"github.com/civiclens/backend/internal/http/handlers"
	"github.com/civiclens/backend/internal/http/middleware"
	"github.com/civiclens/backend/internal/service"

	_ "github.com/civiclens/backend/docs"
)

func Router(cfg config.Config, store *db.Store, submissions *service.SubmissionService, status *service.StatusService, sweeper *service.Sweeper, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:       store,
		Submissions: submissions,
		Status:      status,
		Sweeper:     sweeper,
		Validator:   validator.New(),
		Logger:      logger,
		AdminKey:    cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/reports", h.SubmitReport)
		api.GET("/reports", h.ReportsList)
		api.GET("/reports/:id", h.ReportDetails)
		api.POST("/reports/:id/reopen", h.ReopenReport)
		api.GET("/rate-limit/:submitterID", h.RateLimitStatus)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.PATCH("/reports/:id/status", h.UpdateReportStatus)
		admin.POST("/sweep", h.RunSweep)
		admin.GET("/sla-configs", h.SLAConfigsList)
		admin.GET("/priority-rules", h.PriorityRulesList)
		admin.POST("/rate-limit/:submitterID/block", h.BlockSubmitter)
		admin.POST("/rate-limit/:submitterID/unblock", h.UnblockSubmitter)
		admin.POST("/rate-limit/:submitterID/trust", h.TrustSubmitter)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
