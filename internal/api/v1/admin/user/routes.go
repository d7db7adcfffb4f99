package user

import "github.com/gin-gonic/gin"

// RegisterRoutes expects router to already require an admin.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/users", h.ListUsers)
	router.POST("/users", h.CreateUser)
	router.GET("/users/:id", h.GetUser)
	router.PUT("/users/:id", h.UpdateUser)
	router.DELETE("/users/:id", h.DeleteUser)
}
