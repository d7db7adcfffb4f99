package user

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	me := router.Group("/users/me")
	me.GET("", h.CurrentUser)
	me.PUT("", h.UpdateCurrentUser)
}
