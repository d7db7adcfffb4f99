package api_key

import (
	"net/http"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

type Handler struct {
	keys *services.APIKeyService
}

func NewHandler(keys *services.APIKeyService) *Handler {
	return &Handler{keys: keys}
}

// CreateAPIKey godoc
// @Summary Create an API key
// @Description Create an API key for the caller. The raw key is only shown in this response.
// @Tags api-keys
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateAPIKeyRequest true "Key details"
// @Success 201 {object} utils.Response{data=CreatedAPIKey}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /api-keys [post]
func (h *Handler) CreateAPIKey(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	var req CreateAPIKeyRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	key, raw, err := h.keys.Create(c.Request.Context(), services.CreateAPIKeyParams{
		Name:      req.Name,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
		UserID:    user.ID,
	})
	if err != nil {
		common.RespondError(c, err, "Failed to create API key")
		return
	}

	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "API key created successfully", CreatedAPIKey{APIKey: *key, Key: raw}))
}

// ListAPIKeys godoc
// @Summary List API keys
// @Description List the caller's API keys. Admins see every key.
// @Tags api-keys
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} utils.Response{data=APIKeyListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /api-keys [get]
func (h *Handler) ListAPIKeys(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	page, limit, ok := common.Pagination(c, maxPageSize)
	if !ok {
		return
	}

	filter := services.APIKeyFilter{Page: page, Limit: limit}
	if !user.IsAdmin() {
		filter.UserID = user.ID
	}
	keys, total, err := h.keys.List(c.Request.Context(), filter)
	if err != nil {
		common.RespondError(c, err, "Failed to fetch API keys")
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", APIKeyListResponse{
		Keys:  keys,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// GetAPIKey godoc
// @Summary Get an API key
// @Tags api-keys
// @Produce json
// @Security Bearer
// @Param id path string true "API key ID"
// @Success 200 {object} utils.Response{data=models.APIKey}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /api-keys/{id} [get]
func (h *Handler) GetAPIKey(c *gin.Context) {
	key, ok := h.authorized(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", key))
}

// UpdateAPIKey godoc
// @Summary Update an API key
// @Tags api-keys
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "API key ID"
// @Param request body UpdateAPIKeyRequest true "Fields to update"
// @Success 200 {object} utils.Response{data=models.APIKey}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /api-keys/{id} [put]
func (h *Handler) UpdateAPIKey(c *gin.Context) {
	key, ok := h.authorized(c)
	if !ok {
		return
	}
	var req UpdateAPIKeyRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Scopes != nil {
		updates["scopes"] = *req.Scopes
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, "No fields to update")
		return
	}

	updated, err := h.keys.Update(c.Request.Context(), key.ID, updates)
	if err != nil {
		common.RespondError(c, err, "Failed to update API key")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("API key updated successfully", updated))
}

// DeactivateAPIKey godoc
// @Summary Deactivate an API key
// @Tags api-keys
// @Produce json
// @Security Bearer
// @Param id path string true "API key ID"
// @Success 200 {object} utils.Response{data=models.APIKey}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /api-keys/{id}/deactivate [post]
func (h *Handler) DeactivateAPIKey(c *gin.Context) {
	key, ok := h.authorized(c)
	if !ok {
		return
	}
	updated, err := h.keys.Deactivate(c.Request.Context(), key.ID)
	if err != nil {
		common.RespondError(c, err, "Failed to deactivate API key")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("API key deactivated successfully", updated))
}

// DeleteAPIKey godoc
// @Summary Delete an API key
// @Tags api-keys
// @Produce json
// @Security Bearer
// @Param id path string true "API key ID"
// @Success 200 {object} utils.Response{data=common.ActionResult}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /api-keys/{id} [delete]
func (h *Handler) DeleteAPIKey(c *gin.Context) {
	key, ok := h.authorized(c)
	if !ok {
		return
	}
	if err := h.keys.Delete(c.Request.Context(), key.ID); err != nil {
		common.RespondError(c, err, "Failed to delete API key")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("API key deleted successfully", common.ActionResult{
		Success: true,
		Message: "API key deleted",
	}))
}

// authorized loads the key in the path and checks the caller may touch it.
func (h *Handler) authorized(c *gin.Context) (*models.APIKey, bool) {
	user, ok := common.RequireUser(c)
	if !ok {
		return nil, false
	}
	key, err := h.keys.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err, "Failed to fetch API key")
		return nil, false
	}
	if key.UserID != user.ID && !user.IsAdmin() {
		common.Fail(c, http.StatusForbidden, "Permission denied")
		return nil, false
	}
	return key, true
}
