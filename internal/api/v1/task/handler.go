package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"
	"modelhub-backend/internal/worker"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	tasks *services.TaskService
}

func NewHandler(tasks *services.TaskService) *Handler {
	return &Handler{tasks: tasks}
}

// SubmitTask godoc
// @Summary Submit a new task
// @Description Persist a pending task and dispatch it to the worker queue chosen by its type and priority.
// @Tags tasks
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateTaskRequest true "Task creation request"
// @Success 201 {object} utils.Response{data=models.Task}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /tasks [post]
func (h *Handler) SubmitTask(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if !worker.Registered(req.DispatchTarget) {
		common.Fail(c, http.StatusBadRequest, fmt.Sprintf("Unknown dispatch target %q", req.DispatchTarget))
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	owner := user.ID
	if req.UserID != nil && *req.UserID != "" && *req.UserID != user.ID {
		if !user.IsAdmin() {
			common.Fail(c, http.StatusForbidden, "Only admins can submit tasks for other users")
			return
		}
		owner = *req.UserID
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), services.CreateTaskParams{
		Name:           req.Name,
		TaskType:       req.TaskType,
		DispatchTarget: req.DispatchTarget,
		Args:           req.Args,
		Kwargs:         req.Kwargs,
		Priority:       priority,
		UserID:         &owner,
		ModelID:        req.ModelID,
	})
	if errors.Is(err, services.ErrDispatchFailed) {
		common.Fail(c, http.StatusBadRequest, "Failed to create task: "+err.Error())
		return
	}
	if err != nil {
		common.RespondError(c, err, "Failed to create task")
		return
	}

	c.JSON(http.StatusCreated, utils.NewResponse(http.StatusCreated, "Task submitted successfully", task))
}

// ListTasks godoc
// @Summary List tasks
// @Description List tasks with filters. Non-admin callers only see their own tasks.
// @Tags tasks
// @Produce json
// @Security Bearer
// @Param user_id query string false "Owner (admins only)"
// @Param model_id query string false "Related model"
// @Param status query string false "Status"
// @Param task_type query string false "Task type"
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(100)
// @Param order_by query string false "Sort column" default(created_at)
// @Param order_desc query bool false "Sort descending" default(true)
// @Success 200 {object} utils.Response{data=TaskListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /tasks [get]
func (h *Handler) ListTasks(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	filter, ok := buildFilter(c, user)
	if !ok {
		return
	}

	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		common.Fail(c, http.StatusBadRequest, "Invalid skip")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultTaskListLimit)))
	if err != nil || limit < 1 || limit > services.MaxTaskListLimit {
		common.Fail(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", services.MaxTaskListLimit))
		return
	}
	desc, err := strconv.ParseBool(c.DefaultQuery("order_desc", "true"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, "Invalid order_desc")
		return
	}
	filter.Skip = skip
	filter.Limit = limit
	filter.OrderBy = c.DefaultQuery("order_by", "created_at")
	filter.OrderAsc = !desc

	tasks, err := h.tasks.GetTasks(c.Request.Context(), filter)
	if err != nil {
		common.RespondError(c, err, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", TaskListResponse{
		Total: len(tasks),
		Items: tasks,
	}))
}

// CountTasks godoc
// @Summary Count tasks
// @Description Count tasks per status. Accepts the list filters except pagination.
// @Tags tasks
// @Produce json
// @Security Bearer
// @Param user_id query string false "Owner (admins only)"
// @Param model_id query string false "Related model"
// @Param status query string false "Status"
// @Param task_type query string false "Task type"
// @Success 200 {object} utils.Response{data=map[string]int64}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /tasks/count [get]
func (h *Handler) CountTasks(c *gin.Context) {
	user, ok := common.RequireUser(c)
	if !ok {
		return
	}
	filter, ok := buildFilter(c, user)
	if !ok {
		return
	}

	counts, err := h.tasks.GetTaskCount(c.Request.Context(), filter)
	if err != nil {
		common.RespondError(c, err, "Failed to count tasks")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", counts))
}

// GetTaskDetail godoc
// @Summary Get task detail
// @Description Get one task. With sync_status the dispatcher is asked for the live state first.
// @Tags tasks
// @Produce json
// @Security Bearer
// @Param id path string true "Task ID"
// @Param sync_status query bool false "Reconcile with the dispatcher" default(false)
// @Success 200 {object} utils.Response{data=models.Task}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /tasks/{id} [get]
func (h *Handler) GetTaskDetail(c *gin.Context) {
	task, ok := h.authorized(c)
	if !ok {
		return
	}

	sync, err := strconv.ParseBool(c.DefaultQuery("sync_status", "false"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, "Invalid sync_status")
		return
	}
	if sync {
		if task, err = h.tasks.SyncTaskStatus(c.Request.Context(), task.ID); err != nil {
			common.RespondError(c, err, "Failed to sync task status")
			return
		}
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", task))
}

// UpdateTask godoc
// @Summary Update task status
// @Description Write status, progress, result or error. Finished tasks cannot change.
// @Tags tasks
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Task ID"
// @Param request body UpdateTaskRequest true "Task update request"
// @Success 200 {object} utils.Response{data=models.Task}
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /tasks/{id} [patch]
func (h *Handler) UpdateTask(c *gin.Context) {
	task, ok := h.authorized(c)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var upd services.TaskStatusUpdate
	if req.Status != nil {
		status, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, err.Error())
			return
		}
		upd.Status = status
	}
	if req.Progress != nil {
		if *req.Progress < 0 || *req.Progress > 100 {
			common.Fail(c, http.StatusBadRequest, "progress must be between 0 and 100")
			return
		}
		upd.Progress = req.Progress
	}
	upd.Result = req.Result
	upd.Error = req.Error

	updated, err := h.tasks.UpdateTaskStatus(c.Request.Context(), task.ID, upd)
	if err != nil {
		common.RespondError(c, err, "Failed to update task")
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Task updated successfully", updated))
}

// CancelTask godoc
// @Summary Cancel a task
// @Description Revoke a pending or running task. success is false when the task already finished or the revoke was refused.
// @Tags tasks
// @Produce json
// @Security Bearer
// @Param id path string true "Task ID"
// @Success 200 {object} utils.Response{data=common.ActionResult}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /tasks/{id}/cancel [post]
func (h *Handler) CancelTask(c *gin.Context) {
	task, ok := h.authorized(c)
	if !ok {
		return
	}

	outcome, err := h.tasks.CancelTask(c.Request.Context(), task.ID)
	if err != nil {
		common.RespondError(c, err, "Failed to cancel task")
		return
	}

	result := common.ActionResult{Success: outcome.Cancelled, Message: "Task cancelled"}
	if !outcome.Cancelled {
		result.Message = "Failed to cancel task"
		if outcome.Status.IsTerminal() {
			result.Message = fmt.Sprintf("Task already %s", outcome.Status)
		}
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(result.Message, result))
}

// DeleteTask godoc
// @Summary Delete a task
// @Description Cancel in-flight work, then remove the record.
// @Tags tasks
// @Produce json
// @Security Bearer
// @Param id path string true "Task ID"
// @Success 200 {object} utils.Response{data=common.ActionResult}
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /tasks/{id} [delete]
func (h *Handler) DeleteTask(c *gin.Context) {
	task, ok := h.authorized(c)
	if !ok {
		return
	}

	deleted, err := h.tasks.DeleteTask(c.Request.Context(), task.ID)
	if err != nil {
		common.RespondError(c, err, "Failed to delete task")
		return
	}

	result := common.ActionResult{Success: deleted, Message: "Task deleted"}
	if !deleted {
		result.Message = "Task not found"
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(result.Message, result))
}

// authorized loads the task in the path; only its owner or an admin passes.
func (h *Handler) authorized(c *gin.Context) (*models.Task, bool) {
	user, ok := common.RequireUser(c)
	if !ok {
		return nil, false
	}
	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err, "Failed to fetch task")
		return nil, false
	}
	if !task.OwnedBy(user.ID) && !user.IsAdmin() {
		common.Fail(c, http.StatusForbidden, "Permission denied")
		return nil, false
	}
	return task, true
}

func buildFilter(c *gin.Context, user models.User) (services.TaskFilter, bool) {
	filter := services.TaskFilter{
		UserID:   c.Query("user_id"),
		ModelID:  c.Query("model_id"),
		TaskType: c.Query("task_type"),
	}
	if !user.IsAdmin() {
		filter.UserID = user.ID
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseTaskStatus(raw)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, err.Error())
			return filter, false
		}
		filter.Status = status
	}
	return filter, true
}

// parsePriority accepts a JSON string or number. Absent means NORMAL.
func parsePriority(raw json.RawMessage) (models.TaskPriority, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return models.TaskPriorityNormal, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return models.ParseTaskPriority(name)
	}
	return models.ParseTaskPriority(text)
}
