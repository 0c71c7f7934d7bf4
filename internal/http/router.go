package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/hvac_dispatch/backend/internal/board"
	"github.com/hvac_dispatch/backend/internal/config"
	"github.com/hvac_dispatch/backend/internal/events"
	"github.com/hvac_dispatch/backend/internal/http/handlers"
	"github.com/hvac_dispatch/backend/internal/http/middleware"
	"github.com/hvac_dispatch/backend/internal/service"

	_ "github.com/hvac_dispatch/backend/docs"
)

const eventsPath = "/api/events"

func Router(cfg config.Config, store handlers.Store, dispatch *service.Service, dispatchBoard *board.Board, bus *events.Bus, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.Deadline(cfg.RequestTimeout, eventsPath))

	h := &handlers.Handler{
		Store:     store,
		Dispatch:  dispatch,
		Board:     dispatchBoard,
		Bus:       bus,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/technicians", h.TechniciansList)
		api.POST("/technicians/import", h.ImportTechnicians)
		api.GET("/technicians/:id/slots", h.AvailableSlots)
		api.GET("/technicians/:id/conflicts", h.Conflicts)

		api.POST("/dispatch/optimal", h.FindOptimal)

		api.POST("/jobs", h.ScheduleJob)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/:id/reschedule", h.RescheduleJob)
		api.POST("/jobs/:id/cancel", h.CancelJob)
		api.POST("/jobs/:id/status", h.UpdateStatus)
		api.POST("/jobs/:id/reassign", h.ReassignJob)

		api.GET("/workload", h.Workload)
		api.POST("/workload/rebalance", h.Rebalance)

		api.GET("/board", h.DispatchBoard)
		api.GET("/events", h.Events)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
