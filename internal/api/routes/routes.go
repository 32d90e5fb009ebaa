package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/global-credit/credit_core/internal/api/handlers"
	"github.com/global-credit/credit_core/internal/api/middleware"
	"github.com/global-credit/credit_core/internal/infrastructure/di"
)

// SetupRoutes builds the gin router over the container
func SetupRoutes(c *di.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(c.Logger))

	appHandlers := handlers.NewApplicationHandlers(c.AppService, c.Logger)
	webhookHandlers := handlers.NewWebhookHandlers(c.WebhookService, c.Config.Security.WebhookSecret, c.Logger)
	realtimeHandlers := handlers.NewRealtimeHandlers(c.Hub, c.Logger)
	healthHandlers := handlers.NewHealthHandlers(c.DB, c.Redis)
	adminHandlers := handlers.NewAdminHandlers(c.AppService, c.Breakers, c.FailedJobRepo, c.PendingJobRepo, c.Logger)

	router.GET("/health", healthHandlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/applications", appHandlers.Create)
		v1.GET("/applications/:id", appHandlers.Get)
		v1.GET("/applications/:id/audit", appHandlers.AuditTrail)

		v1.POST("/webhooks/bank-confirmation", webhookHandlers.BankConfirmation)

		v1.GET("/ws", realtimeHandlers.Connect)

		admin := v1.Group("/admin")
		{
			admin.POST("/applications/:id/cancel", adminHandlers.CancelApplication)
			admin.GET("/breakers", adminHandlers.BreakerSnapshot)
			admin.POST("/breakers/open", adminHandlers.ForceOpenBreaker)
			admin.POST("/breakers/close", adminHandlers.ForceCloseBreaker)
			admin.GET("/failed-jobs", adminHandlers.ListFailedJobs)
			admin.POST("/failed-jobs/:job_id/retry", adminHandlers.RetryFailedJob)
		}
	}

	return router
}
