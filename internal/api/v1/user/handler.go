package user

import (
	"net/http"
	"strings"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	users *services.UserService
}

func NewHandler(users *services.UserService) *Handler {
	return &Handler{users: users}
}

// CurrentUser godoc
// @Summary Get current user
// @Description Get current user's information
// @Tags user
// @Produce  json
// @Security Bearer
// @Success 200 {object} utils.Response{data=user.UserResponse}
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users/me [get]
func (h *Handler) CurrentUser(c *gin.Context) {
	u, ok := common.RequireUser(c)
	if !ok {
		return
	}

	// Reload so the response carries the latest version number.
	latest, err := h.users.FindUserByID(c.Request.Context(), u.ID)
	if err == nil {
		u = latest
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("User information retrieved successfully", NewUserResponse(u)))
}

// UpdateCurrentUser godoc
// @Summary Update current user
// @Description Update the caller's email, full name or password. Changing one's own role is refused.
// @Tags user
// @Accept  json
// @Produce  json
// @Security Bearer
// @Param body body UpdateMeRequest true "Fields to update"
// @Success 200 {object} utils.Response{data=user.UserResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users/me [put]
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	u, ok := common.RequireUser(c)
	if !ok {
		return
	}

	var req UpdateMeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if req.Role != nil && *req.Role != string(u.Role) {
		common.Fail(c, http.StatusBadRequest, "Cannot change your own role")
		return
	}

	updates := make(map[string]interface{})
	if req.Email != nil {
		updates["email"] = strings.ToLower(*req.Email)
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Password != nil {
		updates["password"] = *req.Password
	}
	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, "No fields to update")
		return
	}

	updated, err := h.users.UpdateUser(c.Request.Context(), u.ID, updates, u.Username)
	if err != nil {
		common.RespondError(c, err, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("User updated successfully", NewUserResponse(*updated)))
}
