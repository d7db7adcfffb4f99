package task

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	tasks := router.Group("/tasks")
	{
		tasks.POST("", h.SubmitTask)
		tasks.GET("", h.ListTasks)
		tasks.GET("/count", h.CountTasks)
		tasks.GET("/:id", h.GetTaskDetail)
		tasks.PATCH("/:id", h.UpdateTask)
		tasks.POST("/:id/cancel", h.CancelTask)
		tasks.DELETE("/:id", h.DeleteTask)
	}
}
