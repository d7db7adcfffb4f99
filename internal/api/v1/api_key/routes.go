package api_key

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	keys := router.Group("/api-keys")
	{
		keys.POST("", h.CreateAPIKey)
		keys.GET("", h.ListAPIKeys)
		keys.GET("/:id", h.GetAPIKey)
		keys.PUT("/:id", h.UpdateAPIKey)
		keys.DELETE("/:id", h.DeleteAPIKey)
		keys.POST("/:id/deactivate", h.DeactivateAPIKey)
	}
}
