package health

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public health check.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.Check)
}

// RegisterAdminRoutes mounts the worker view. The group must already require an admin.
func (h *Handler) RegisterAdminRoutes(router *gin.RouterGroup) {
	router.GET("/health/workers", h.Workers)
}
