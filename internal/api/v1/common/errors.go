package common

import (
	"errors"
	"net/http"
	"strconv"

	"modelhub-backend/internal/middleware"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"
	"modelhub-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	notFound = []error{
		services.ErrTaskNotFound,
		services.ErrUserNotFound,
		services.ErrModelNotFound,
		services.ErrModelVersionNotFound,
		services.ErrAPIKeyNotFound,
	}
	conflict = []error{
		services.ErrOptimisticLock,
		services.ErrTaskTerminal,
	}
	badRequest = []error{
		services.ErrUserAlreadyExists,
		services.ErrEmailAlreadyExists,
		services.ErrLastAdmin,
		services.ErrCannotDeleteSelf,
		services.ErrInvalidRole,
		services.ErrInvalidModelState,
		services.ErrDispatchFailed,
	}
)

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case matchAny(err, notFound):
		return http.StatusNotFound
	case matchAny(err, conflict):
		return http.StatusConflict
	case matchAny(err, badRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInactiveUser):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSTSNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the envelope for err. Internal errors are logged and
// replaced by fallback so driver messages never reach the client.
func RespondError(c *gin.Context, err error, fallback string) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.Error(fallback,
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = fallback
	}
	c.JSON(status, utils.NewErrorResponse(status, message))
}

// Fail writes an error envelope with an explicit status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, utils.NewErrorResponse(status, message))
}

// RequireUser returns the authenticated caller, answering 401 when absent.
func RequireUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		Fail(c, http.StatusUnauthorized, "User not authenticated")
	}
	return user, ok
}

// Pagination reads page and limit query parameters, answering 400 when
// they are not positive integers. limit is capped at maxLimit.
func Pagination(c *gin.Context, maxLimit int) (page, limit int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		Fail(c, http.StatusBadRequest, "Invalid page number")
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		Fail(c, http.StatusBadRequest, "Invalid limit number")
		return 0, 0, false
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, true
}

// ActionResult is the body of cancel and delete endpoints.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func matchAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
