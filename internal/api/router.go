package api

import (
	"modelhub-backend/internal/api/v1/admin/user"
	"modelhub-backend/internal/api/v1/ai_model"
	"modelhub-backend/internal/api/v1/api_key"
	"modelhub-backend/internal/api/v1/auth"
	"modelhub-backend/internal/api/v1/common/upload"
	"modelhub-backend/internal/api/v1/health"
	"modelhub-backend/internal/api/v1/task"
	userRoutes "modelhub-backend/internal/api/v1/user"
	"modelhub-backend/internal/middleware"
	"modelhub-backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps is everything the HTTP layer needs. Pool and Uploads may be nil.
type Deps struct {
	Logger       *zap.Logger
	CORSOrigins  []string
	APIKeyHeader string

	Auth        *services.AuthService
	Users       *services.UserService
	APIKeys     *services.APIKeyService
	Tasks       *services.TaskService
	Models      *services.ModelService
	Health      *services.HealthChecker
	ActiveUsers *services.ActiveUsers
	Pool        health.StatsSource
	Uploads     upload.TokenIssuer
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Logger(d.Logger), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     d.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", d.APIKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := middleware.AuthMiddleware(d.Auth, d.ActiveUsers, d.APIKeyHeader)
	healthHandler := health.NewHandler(d.Health, d.Pool, d.ActiveUsers)

	v1 := router.Group("/api/v1")
	{
		auth.NewHandler(d.Auth, requireAuth).RegisterRoutes(v1)
		healthHandler.RegisterRoutes(v1)

		authorized := v1.Group("")
		authorized.Use(requireAuth)
		{
			userRoutes.NewHandler(d.Users).RegisterRoutes(authorized)
			api_key.NewHandler(d.APIKeys).RegisterRoutes(authorized)
			ai_model.NewHandler(d.Models, d.Tasks).RegisterRoutes(authorized)
			task.NewHandler(d.Tasks).RegisterRoutes(authorized)
			if d.Uploads != nil {
				upload.NewHandler(d.Uploads).RegisterRoutes(authorized)
			}
		}

		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.AdminAuthMiddleware())
		{
			user.NewHandler(d.Users).RegisterRoutes(admin)
			healthHandler.RegisterAdminRoutes(admin)
		}
	}

	return router
}
