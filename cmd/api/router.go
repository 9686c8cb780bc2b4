package api

import (
	"github.com/gin-gonic/gin"

	criteriaDelivery "mailsweep-backend/internal/criteria/delivery"
	triageDelivery "mailsweep-backend/internal/triage/delivery"
)

// SetupRoutes mounts the API surface.
func SetupRoutes(r *gin.Engine, triageHandler *triageDelivery.TriageHandler, criteriaHandler *criteriaDelivery.CriteriaHandler) {
	api := r.Group("/api")
	{
		api.GET("/health", triageHandler.Health)

		cleanup := api.Group("/cleanup")
		{
			cleanup.POST("/start", triageHandler.StartCleanup)
			cleanup.GET("/events/:job_id", triageHandler.StreamEvents)
			cleanup.POST("/cancel", triageHandler.CancelCleanup)
			cleanup.POST("/run", triageHandler.RunCleanup)
			cleanup.POST("/feedback", triageHandler.SubmitFeedback)
		}

		criteria := api.Group("/criteria")
		{
			criteria.GET("", criteriaHandler.List)
			criteria.POST("", criteriaHandler.Create)
			criteria.PATCH("/:id", criteriaHandler.Update)
			criteria.DELETE("/:id", criteriaHandler.Delete)
		}

		api.POST("/watch/:mailbox", triageHandler.RegisterWatch)
		api.POST("/sync/:mailbox", triageHandler.Resync)
		api.POST("/digest", triageHandler.RunDigest)
	}
}
