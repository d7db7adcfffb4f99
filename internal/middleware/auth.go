package middleware

import (
	"context"
	"errors"
	"net/http"

	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const userContextKey = "user"

// Authenticator resolves credentials to an active user.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (models.User, error)
	AuthenticateAPIKey(ctx context.Context, key string) (models.User, error)
}

// AuthMiddleware accepts an API key in apiKeyHeader or a bearer token and
// stores the user under "user". tracker may be nil.
func AuthMiddleware(auth Authenticator, tracker *services.ActiveUsers, apiKeyHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user models.User
			err  error
		)
		if key := c.GetHeader(apiKeyHeader); apiKeyHeader != "" && key != "" {
			user, err = auth.AuthenticateAPIKey(c.Request.Context(), key)
		} else {
			var tokenString string
			tokenString, err = utils.ExtractToken(c)
			if err != nil {
				utils.AbortWithError(c, http.StatusUnauthorized, err.Error())
				return
			}
			user, err = auth.AuthenticateToken(c.Request.Context(), tokenString)
		}

		if err != nil {
			status, message := authFailure(err)
			utils.AbortWithError(c, status, message)
			return
		}

		if tracker != nil {
			tracker.Touch(user.ID)
		}
		SetUser(c, user)
		c.Next()
	}
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrTokenRevoked):
		return http.StatusUnauthorized, "Token has been revoked"
	case errors.Is(err, services.ErrAPIKeyInvalid):
		return http.StatusUnauthorized, "Invalid or expired API key"
	case errors.Is(err, services.ErrInactiveUser):
		return http.StatusForbidden, "User account is disabled"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusUnauthorized, "User not found"
	default:
		return http.StatusUnauthorized, "Invalid or expired token"
	}
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// SetUser stores user as the authenticated caller.
func SetUser(c *gin.Context, user models.User) {
	c.Set(userContextKey, user)
}
