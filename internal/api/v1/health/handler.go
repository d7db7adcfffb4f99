package health

import (
	"net/http"
	"time"

	"modelhub-backend/internal/monitor"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// StatsSource supplies the latest worker pool snapshot.
type StatsSource interface {
	Stats() *monitor.Snapshot
}

// ActiveCounter reports how many users were seen recently.
type ActiveCounter interface {
	Count() int
}

type Handler struct {
	checker *services.HealthChecker
	pool    StatsSource
	active  ActiveCounter
}

func NewHandler(checker *services.HealthChecker, pool StatsSource, active ActiveCounter) *Handler {
	return &Handler{checker: checker, pool: pool, active: active}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string                              `json:"status"`
	Timestamp  time.Time                           `json:"timestamp"`
	Components map[string]services.ComponentHealth `json:"components"`
}

// WorkerHealthResponse is the body of GET /admin/health/workers.
type WorkerHealthResponse struct {
	Pool        *monitor.Snapshot `json:"pool"`
	ActiveUsers int               `json:"active_users"`
}

// Check godoc
// @Summary Service health
// @Description Ping the database and redis. Answers 503 when any of them is down.
// @Tags health
// @Produce json
// @Success 200 {object} utils.Response{data=HealthResponse}
// @Failure 503 {object} utils.Response{data=HealthResponse}
// @Router /health [get]
func (h *Handler) Check(c *gin.Context) {
	components, ok := h.checker.CheckAll(c.Request.Context(), []string{services.ComponentDatabase, services.ComponentRedis})
	body := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Components: components}
	status := http.StatusOK
	if !ok {
		body.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, utils.NewResponse(status, body.Status, body))
}

// Workers godoc
// @Summary Worker pool health
// @Description Last worker pool snapshot with scaling advice and the number of recently active users.
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} utils.Response{data=WorkerHealthResponse}
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Router /admin/health/workers [get]
func (h *Handler) Workers(c *gin.Context) {
	var body WorkerHealthResponse
	if h.pool != nil {
		body.Pool = h.pool.Stats()
	}
	if h.active != nil {
		body.ActiveUsers = h.active.Count()
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Success", body))
}
