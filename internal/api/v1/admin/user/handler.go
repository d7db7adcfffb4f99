package user

import (
	"net/http"
	"strings"

	"modelhub-backend/internal/api/v1/common"
	v1user "modelhub-backend/internal/api/v1/user"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"
	"modelhub-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPageSize = 100

type Handler struct {
	users *services.UserService
}

func NewHandler(users *services.UserService) *Handler {
	return &Handler{users: users}
}

// ListUsers godoc
// @Summary List all users
// @Description Get a paginated list of users. Admin only.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(10)
// @Success 200 {object} utils.Response{data=UserListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	page, limit, ok := common.Pagination(c, maxPageSize)
	if !ok {
		return
	}

	users, total, err := h.users.FindUsers(c.Request.Context(), page, limit)
	if err != nil {
		common.RespondError(c, err, "Failed to fetch users")
		return
	}

	items := make([]v1user.UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, v1user.NewUserResponse(u))
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Users retrieved successfully", UserListResponse{
		Users: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// CreateUser godoc
// @Summary Create a user
// @Description Create an account with an explicit role. Admin only.
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param body body CreateUserRequest true "New user"
// @Success 201 {object} utils.Response{data=v1user.UserResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	operator, ok := common.RequireUser(c)
	if !ok {
		return
	}

	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	role := models.UserRole(req.Role)
	if role == models.RoleSuperAdmin && operator.Role != models.RoleSuperAdmin {
		common.Fail(c, http.StatusForbidden, "Only a super admin can create super admins")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	created, err := h.users.CreateUser(c.Request.Context(), services.CreateUserParams{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     role,
		IsActive: active,
	})
	if err != nil {
		common.RespondError(c, err, "Failed to create user")
		return
	}

	logger.Log.Info("admin created user",
		zap.String("operator", operator.Username),
		zap.String("user_id", created.ID),
		zap.String("role", string(created.Role)))

	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "User created successfully", v1user.NewUserResponse(*created)))
}

// GetUser godoc
// @Summary Get a user
// @Description Get one user by ID. Admin only.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Success 200 {object} utils.Response{data=v1user.UserResponse}
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.users.FindUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("User retrieved successfully", v1user.NewUserResponse(u)))
}

// UpdateUser godoc
// @Summary Update a user
// @Description Update user details. Admin only. The last active admin cannot be demoted or disabled.
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param body body UpdateUserRequest true "User details to update"
// @Success 200 {object} utils.Response{data=v1user.UserResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	operator, ok := common.RequireUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
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
	if req.Role != nil {
		if models.UserRole(*req.Role) == models.RoleSuperAdmin && operator.Role != models.RoleSuperAdmin {
			common.Fail(c, http.StatusForbidden, "Only a super admin can grant super admin")
			return
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, "No fields to update")
		return
	}

	updated, err := h.users.UpdateUser(c.Request.Context(), c.Param("id"), updates, operator.Username)
	if err != nil {
		common.RespondError(c, err, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("User updated successfully", v1user.NewUserResponse(*updated)))
}

// DeleteUser godoc
// @Summary Delete a user
// @Description Delete an account and its API keys. Admins cannot delete themselves or the last admin.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	operator, ok := common.RequireUser(c)
	if !ok {
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), c.Param("id"), operator.ID); err != nil {
		common.RespondError(c, err, "Failed to delete user")
		return
	}

	logger.Log.Info("admin deleted user", zap.String("operator", operator.Username), zap.String("user_id", c.Param("id")))
	c.JSON(http.StatusOK, utils.NewSuccessResponse("User deleted successfully", nil))
}
