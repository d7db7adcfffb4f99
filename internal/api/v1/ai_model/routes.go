package ai_model

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	modelGroup := router.Group("/models")
	{
		modelGroup.POST("", h.CreateModel)
		modelGroup.GET("", h.GetModels)
		modelGroup.GET("/public", h.GetPublicModels)
		modelGroup.GET("/:id", h.GetModel)
		modelGroup.PUT("/:id", h.UpdateModel)
		modelGroup.DELETE("/:id", h.DeleteModel)
		modelGroup.POST("/:id/upload", h.UploadModelFile)
		modelGroup.POST("/:id/validate", h.ValidateModel)
		modelGroup.POST("/:id/deploy", h.DeployModel)
		modelGroup.POST("/:id/versions", h.CreateVersion)
		modelGroup.GET("/:id/versions", h.ListVersions)
		modelGroup.GET("/:id/versions/:version_id", h.GetVersion)
	}
}
