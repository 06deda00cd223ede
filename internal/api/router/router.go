package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/routedly/marketplace-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
// Dispatch responses and payment confirmations sit outside the auth group:
// the dispatch token is its own credential, and confirmations arrive from
// the provider webhook.
func SetupRouter(deps *handler.Dependencies, jwtSecret string) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "marketplace-api-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "marketplace-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	routingHandler := handler.NewRoutingHandler(deps)
	slaHandler := handler.NewSlaHandler(deps)
	paymentHandler := handler.NewPaymentHandler(deps)

	v1 := r.Group("/api/v1")

	// Token-credentialed and webhook endpoints
	v1.POST("/dispatches/respond", routingHandler.RespondDispatch)
	v1.POST("/payments/confirm", paymentHandler.ConfirmPayment)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(jwtSecret))
	{
		jobs := authed.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/publish", jobHandler.PublishJob)
			jobs.PATCH("/:job_id/totals", jobHandler.UpdateTotals)
			jobs.POST("/:job_id/start", jobHandler.StartJob)
			jobs.POST("/:job_id/complete", jobHandler.CompleteJob)
			jobs.POST("/:job_id/approve", jobHandler.ApproveJob)
			jobs.POST("/:job_id/reject", jobHandler.RejectJob)
			jobs.POST("/:job_id/flag", jobHandler.FlagJob)
			jobs.POST("/:job_id/dispute", jobHandler.DisputeJob)
			jobs.POST("/:job_id/dispute/clear", jobHandler.ClearDisputeJob)
			jobs.POST("/:job_id/archive", jobHandler.ArchiveJob)

			jobs.POST("/:job_id/claim", routingHandler.ClaimJob)
			jobs.POST("/:job_id/routing", routingHandler.ApplyRouting)
			jobs.POST("/:job_id/admin-route", routingHandler.AdminRoute)

			jobs.POST("/:job_id/payment-intent", paymentHandler.CreatePaymentIntent)
		}

		slaGroup := authed.Group("/sla")
		{
			slaGroup.POST("/evaluate", slaHandler.Evaluate)
			slaGroup.GET("/events", slaHandler.ListEvents)
		}
	}

	return r
}
