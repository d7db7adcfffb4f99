package auth

import (
	"errors"
	"net/http"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/api/v1/user"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	auth        *services.AuthService
	requireAuth gin.HandlerFunc
}

// NewHandler builds the auth endpoints. requireAuth guards logout.
func NewHandler(auth *services.AuthService, requireAuth gin.HandlerFunc) *Handler {
	return &Handler{auth: auth, requireAuth: requireAuth}
}

type RegisterInput struct {
	Username        string `json:"username" binding:"required,min=3,max=50"`
	Email           string `json:"email" binding:"required,email"`
	FullName        string `json:"full_name" binding:"max=100"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// Register godoc
// @Summary Register a new user
// @Description Register a new user. The first account on an empty system becomes an admin.
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   input     body   RegisterInput  true  "Register Input"
// @Success 201 {object} utils.Response{data=user.UserResponse}
// @Failure 400 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var input RegisterInput
	if !utils.BindAndValidate(c, &input) {
		return
	}
	if input.Password != input.ConfirmPassword {
		common.Fail(c, http.StatusBadRequest, "Passwords do not match")
		return
	}

	u, err := h.auth.Register(c.Request.Context(), input.Username, input.Email, input.FullName, input.Password)
	if err != nil {
		common.RespondError(c, err, "Failed to register user due to an internal error")
		return
	}

	token, err := utils.GenerateToken(u.ID, string(u.Role))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, "Could not generate token")
		return
	}

	resp := user.NewUserResponse(*u)
	resp.Token = token
	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "User registered successfully", resp))
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Log in a user
// @Description Log in a user with a username and password
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   input     body   LoginInput  true  "Login Input"
// @Success 200 {object} utils.Response{data=user.UserResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var input LoginInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	token, u, err := h.auth.Login(c.Request.Context(), input.Username, input.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		common.Fail(c, http.StatusUnauthorized, "Invalid username or password")
		return
	case errors.Is(err, services.ErrInactiveUser):
		common.Fail(c, http.StatusForbidden, "User account is disabled")
		return
	case err != nil:
		common.RespondError(c, err, "Failed to log in")
		return
	}

	resp := user.NewUserResponse(*u)
	resp.Token = token
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Logged in successfully", resp))
}

// Logout godoc
// @Summary Log out a user
// @Description Invalidate the user's current token
// @Tags auth
// @Produce  json
// @Security Bearer
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	tokenString, err := utils.ExtractToken(c)
	if err != nil {
		// Authenticated through an API key, nothing to revoke.
		common.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.auth.Logout(c.Request.Context(), tokenString); err != nil {
		common.Fail(c, http.StatusInternalServerError, "Failed to denylist token")
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Logged out successfully", nil))
}
