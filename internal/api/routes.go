package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/pcr-tracker-go/internal/api/handlers"
	"github.com/irfndi/pcr-tracker-go/internal/middleware"
	"github.com/irfndi/pcr-tracker-go/internal/sheet"
)

// RouteDeps bundles what SetupRoutes wires into the router.
type RouteDeps struct {
	ServiceName string
	Version     string
	Controller  handlers.PCRController
	Codec       *sheet.Codec
	Admin       *middleware.AdminMiddleware
	Health      map[string]handlers.HealthChecker
	Logger      *slog.Logger
}

// SetupRoutes registers the health check and the PCR endpoints.
func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	if deps.ServiceName == "" {
		deps.ServiceName = "pcr-tracker"
	}
	if deps.Admin == nil {
		deps.Admin = middleware.NewAdminMiddleware("", "production")
	}
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(middleware.RequestLogger(deps.Logger))

	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Health)
	pcrHandler := handlers.NewPCRHandler(deps.Controller, deps.Codec)

	router.GET("/health", healthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		pcr := v1.Group("/pcr")
		{
			pcr.GET("/status", pcrHandler.GetStatus)
			pcr.GET("/latest", pcrHandler.GetLatest)

			admin := pcr.Group("")
			admin.Use(deps.Admin.RequireAdminAuth())
			{
				admin.POST("/update", pcrHandler.TriggerUpdate)
				admin.POST("/reset", pcrHandler.ResetData)
			}
		}
	}
}
