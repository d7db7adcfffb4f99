package middleware

import (
	"net/http"

	"modelhub-backend/internal/utils"
	"modelhub-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminAuthMiddleware lets only admins through. It must run after AuthMiddleware.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		if !user.IsAdmin() {
			logger.Log.Warn("unauthorized admin access attempt",
				zap.String("user_id", user.ID),
				zap.String("path", c.Request.URL.Path))
			utils.AbortWithError(c, http.StatusForbidden, "Forbidden: Admins only")
			return
		}

		c.Next()
	}
}
