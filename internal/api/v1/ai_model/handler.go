package ai_model

import (
	"errors"
	"net/http"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"
	"modelhub-backend/internal/worker"
	"modelhub-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxPageSize = 100

	// modelOperationType routes validate and deploy to the model operations queue.
	modelOperationType = "model_operation"
)

type Handler struct {
	models *services.ModelService
	tasks  *services.TaskService
}

func NewHandler(modelService *services.ModelService, tasks *services.TaskService) *Handler {
	return &Handler{models: modelService, tasks: tasks}
}

// CreateModel godoc
// @Summary Register a model
// @Description Register a new model owned by the caller. parameters, when given, must follow the request_header/request_body/response_parameters contract.
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateModelRequest true "Model details"
// @Success 201 {object} utils.Response{data=models.Model}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /models [post]
func (h *Handler) CreateModel(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	var req CreateModelRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := models.ValidateModelParameters(req.Parameters); err != nil {
		common.Fail(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	}

	model := models.Model{
		Name:        req.Name,
		Description: req.Description,
		Framework:   req.Framework,
		Version:     req.Version,
		IsPublic:    req.IsPublic,
		Accuracy:    req.Accuracy,
		Latency:     req.Latency,
		Parameters:  req.Parameters,
		OwnerID:     user.ID,
	}
	if model.Framework == "" {
		model.Framework = models.FrameworkCustom
	}
	if model.Version == "" {
		model.Version = "0.1.0"
	}
	if model.Parameters == nil {
		model.Parameters = models.JSON{}
	}

	if err := h.models.Create(c.Request.Context(), &model); err != nil {
		common.RespondError(c, err, "Failed to create model")
		return
	}

	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "Model created successfully", model))
}

// GetModels godoc
// @Summary Get list of models
// @Description Retrieve a paginated list of models. Regular users see their own models, admins see all.
// @Tags models
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Param name query string false "Filter by name"
// @Param status query string false "Filter by status"
// @Param framework query string false "Filter by framework"
// @Success 200 {object} utils.Response{data=ModelListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /models [get]
func (h *Handler) GetModels(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	if !user.IsAdmin() {
		filter.OwnerID = user.ID
	}
	h.list(c, filter)
}

// GetPublicModels godoc
// @Summary List public models
// @Description Retrieve a paginated list of models shared publicly.
// @Tags models
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Param name query string false "Filter by name"
// @Param framework query string false "Filter by framework"
// @Success 200 {object} utils.Response{data=ModelListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /models/public [get]
func (h *Handler) GetPublicModels(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	filter.PublicOnly = true
	h.list(c, filter)
}

// GetModel godoc
// @Summary Get a model
// @Description Owners and admins can read any of their models; everyone can read public ones.
// @Tags models
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Success 200 {object} utils.Response{data=models.Model}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id} [get]
func (h *Handler) GetModel(c *gin.Context) {
	model, ok := h.authorized(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", model))
}

// UpdateModel godoc
// @Summary Update a model
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param request body UpdateModelRequest true "Fields to update"
// @Success 200 {object} utils.Response{data=models.Model}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id} [put]
func (h *Handler) UpdateModel(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	var req UpdateModelRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Framework != nil {
		updates["framework"] = *req.Framework
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Accuracy != nil {
		updates["accuracy"] = *req.Accuracy
	}
	if req.Latency != nil {
		updates["latency"] = *req.Latency
	}
	if req.Parameters != nil {
		if err := models.ValidateModelParameters(req.Parameters); err != nil {
			common.Fail(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
			return
		}
		updates["parameters"] = req.Parameters
	}
	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, "No fields to update")
		return
	}

	updated, err := h.models.Update(c.Request.Context(), model.ID, updates)
	if err != nil {
		common.RespondError(c, err, "Failed to update model")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model updated successfully", updated))
}

// DeleteModel godoc
// @Summary Delete a model
// @Description Delete the model, its versions and its stored artifact.
// @Tags models
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Success 200 {object} utils.Response{data=common.ActionResult}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id} [delete]
func (h *Handler) DeleteModel(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	if model.Status == models.ModelStatusDeploying || model.Status == models.ModelStatusDeployed {
		common.Fail(c, http.StatusBadRequest, "Undeploy the model before deleting it")
		return
	}
	if err := h.models.Delete(c.Request.Context(), model.ID); err != nil {
		common.RespondError(c, err, "Failed to delete model")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model deleted successfully", common.ActionResult{
		Success: true,
		Message: "Model deleted",
	}))
}

// UploadModelFile godoc
// @Summary Upload a model artifact
// @Description Stream a multipart file into artifact storage, recording its size and sha256.
// @Tags models
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param file formData file true "Model artifact"
// @Success 200 {object} utils.Response{data=models.Model}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /models/{id}/upload [post]
func (h *Handler) UploadModelFile(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, "File is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	updated, err := h.models.UploadArtifact(c.Request.Context(), model.ID, header.Filename, file)
	if err != nil {
		common.RespondError(c, err, "Failed to store model file")
		return
	}
	logger.Log.Info("model artifact uploaded",
		zap.String("model_id", model.ID),
		zap.Int64("size", updated.FileSize),
		zap.String("hash", updated.FileHash))
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model file uploaded successfully", updated))
}

// ValidateModel godoc
// @Summary Validate a model
// @Description Queue a background validation of the model's parameters and artifact.
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param request body OperationRequest false "Validation config"
// @Success 202 {object} utils.Response{data=OperationResponse}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id}/validate [post]
func (h *Handler) ValidateModel(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	if model.Status == models.ModelStatusDeploying || model.Status == models.ModelStatusDeployed {
		common.RespondError(c, services.ErrInvalidModelState, "")
		return
	}
	h.startOperation(c, model, worker.TaskValidate, "validation_config", models.TaskPriorityNormal)
}

// DeployModel godoc
// @Summary Deploy a model
// @Description Queue a deployment. The model must be uploaded, valid or undeployed.
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param request body OperationRequest false "Deployment config"
// @Success 202 {object} utils.Response{data=OperationResponse}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id}/deploy [post]
func (h *Handler) DeployModel(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	if !model.Status.Deployable() {
		common.RespondError(c, services.ErrInvalidModelState, "")
		return
	}
	h.startOperation(c, model, worker.TaskDeploy, "deployment_config", models.TaskPriorityHigh)
}

// CreateVersion godoc
// @Summary Create a model version
// @Description Record a new version from the current artifact and make it current.
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param request body CreateVersionRequest true "Version details"
// @Success 201 {object} utils.Response{data=models.ModelVersion}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id}/versions [post]
func (h *Handler) CreateVersion(c *gin.Context) {
	model, ok := h.authorized(c, false)
	if !ok {
		return
	}
	var req CreateVersionRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	version, err := h.models.CreateVersion(c.Request.Context(), model.ID, services.CreateVersionParams{
		Version:   req.Version,
		ChangeLog: req.ChangeLog,
	})
	if err != nil {
		common.RespondError(c, err, "Failed to create model version")
		return
	}
	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "Model version created successfully", version))
}

// ListVersions godoc
// @Summary List model versions
// @Tags models
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Success 200 {object} utils.Response{data=[]models.ModelVersion}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	model, ok := h.authorized(c, true)
	if !ok {
		return
	}
	versions, err := h.models.ListVersions(c.Request.Context(), model.ID)
	if err != nil {
		common.RespondError(c, err, "Failed to fetch model versions")
		return
	}
	if versions == nil {
		versions = []models.ModelVersion{}
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", versions))
}

// GetVersion godoc
// @Summary Get a model version
// @Tags models
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Param version_id path string true "Version ID"
// @Success 200 {object} utils.Response{data=models.ModelVersion}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /models/{id}/versions/{version_id} [get]
func (h *Handler) GetVersion(c *gin.Context) {
	model, ok := h.authorized(c, true)
	if !ok {
		return
	}
	version, err := h.models.GetVersion(c.Request.Context(), model.ID, c.Param("version_id"))
	if err != nil {
		common.RespondError(c, err, "Failed to fetch model version")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", version))
}

func (h *Handler) filter(c *gin.Context) (services.ModelFilter, bool) {
	page, limit, ok := common.Pagination(c, maxPageSize)
	if !ok {
		return services.ModelFilter{}, false
	}
	return services.ModelFilter{
		Page:      page,
		Limit:     limit,
		Name:      c.Query("name"),
		Status:    c.Query("status"),
		Framework: c.Query("framework"),
	}, true
}

func (h *Handler) list(c *gin.Context, filter services.ModelFilter) {
	items, total, err := h.models.List(c.Request.Context(), filter)
	if err != nil {
		common.RespondError(c, err, "Failed to fetch models")
		return
	}
	if items == nil {
		items = []models.Model{}
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", ModelListResponse{
		Models: items,
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}))
}

// authorized loads the model in the path. Owners and admins pass; public
// models also pass when readOnly is set.
func (h *Handler) authorized(c *gin.Context, readOnly bool) (*models.Model, bool) {
	user, ok := common.RequireUser(c)
	if !ok {
		return nil, false
	}
	model, err := h.models.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err, "Failed to fetch model")
		return nil, false
	}
	if model.OwnerID == user.ID || user.IsAdmin() || (readOnly && model.IsPublic) {
		return model, true
	}
	common.Fail(c, http.StatusForbidden, "Permission denied")
	return nil, false
}

func (h *Handler) startOperation(c *gin.Context, model *models.Model, target, configKey string, priority models.TaskPriority) {
	user, _ := common.RequireUser(c)

	var req OperationRequest
	if c.Request.ContentLength > 0 && !utils.BindAndValidate(c, &req) {
		return
	}
	if req.Config == nil {
		req.Config = map[string]interface{}{}
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), services.CreateTaskParams{
		Name:           target + " " + model.Name,
		TaskType:       modelOperationType,
		DispatchTarget: target,
		Args:           []interface{}{model.ID},
		Kwargs:         map[string]interface{}{configKey: req.Config},
		Priority:       priority,
		UserID:         &user.ID,
		ModelID:        &model.ID,
	})
	if errors.Is(err, services.ErrDispatchFailed) {
		common.Fail(c, http.StatusBadRequest, "Failed to create task: "+err.Error())
		return
	}
	if err != nil {
		common.RespondError(c, err, "Failed to create task")
		return
	}

	c.JSON(http.StatusAccepted, utils.NewResponse(http.StatusAccepted, "Task queued successfully", OperationResponse{
		TaskID:  task.ID,
		ModelID: model.ID,
		Status:  string(task.Status),
		Queue:   task.Queue,
	}))
}
