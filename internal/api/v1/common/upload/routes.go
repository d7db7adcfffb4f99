package upload

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/common/upload")
	{
		group.GET("/token", h.GetOSSToken)
	}
}
