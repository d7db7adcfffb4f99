// Package apitest wires real services against in-memory sqlite and
// miniredis for handler tests.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"modelhub-backend/internal/database"
	"modelhub-backend/internal/middleware"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Env holds one isolated set of services.
type Env struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Mini       *miniredis.Miniredis
	Dispatcher *Dispatcher
	Storage    services.Storage
	Users      *services.UserService
	APIKeys    *services.APIKeyService
	Tasks      *services.TaskService
	Models     *services.ModelService
	Auth       *services.AuthService
	Health     *services.HealthChecker
	Active     *services.ActiveUsers
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
		_ = sqlDB.Close()
	})

	storage, err := services.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	d := &Dispatcher{}
	users := services.NewUserService(db, rdb, log)
	apiKeys := services.NewAPIKeyService(db, log)
	cache := services.NewTaskCache(rdb, time.Hour, 2*time.Hour)

	return &Env{
		DB:         db,
		Redis:      rdb,
		Mini:       mr,
		Dispatcher: d,
		Storage:    storage,
		Users:      users,
		APIKeys:    apiKeys,
		Tasks:      services.NewTaskService(db, cache, d, nil, log),
		Models:     services.NewModelService(db, rdb, storage, time.Minute, log),
		Auth:       services.NewAuthService(users, apiKeys, services.NewTokenDenylist(rdb), log),
		Health:     services.NewHealthChecker(db, rdb, storage),
		Active:     services.NewActiveUsers(time.Minute),
	}
}

// CreateUser inserts an active account directly, skipping the first-user rule.
func (e *Env) CreateUser(t *testing.T, username string, role models.UserRole) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
		Role:     role,
		IsActive: true,
		Version:  1,
	}
	require.NoError(t, e.DB.Create(&user).Error)
	return user
}

// AsUser authenticates every request as user.
func AsUser(user models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetUser(c, user)
		c.Next()
	}
}

// Router returns an engine whose /api/v1 group runs as user. A zero user
// leaves the group unauthenticated.
func Router(user models.User) (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	group := r.Group("/api/v1")
	if user.ID != "" {
		group.Use(AsUser(user))
	}
	return r, group
}

// Do sends body as JSON (or raw when it is an io.Reader) and records the response.
func Do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Decode parses the response envelope. When data is non-nil the data field
// is decoded into it.
func Decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) utils.Response {
	t.Helper()
	var envelope struct {
		utils.Response
		Raw json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(envelope.Raw, data), string(envelope.Raw))
	}
	resp := envelope.Response
	resp.Data = envelope.Raw
	return resp
}

// Dispatcher is a services.Dispatcher that records submissions.
type Dispatcher struct {
	mu         sync.Mutex
	EnqueueErr error
	RevokeErr  error
	State      services.DispatchStatus
	Enqueued   []string
	Revoked    []string
}

func (d *Dispatcher) Enqueue(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}, queue string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EnqueueErr != nil {
		return "", d.EnqueueErr
	}
	d.Enqueued = append(d.Enqueued, name)
	return fmt.Sprintf("%s:%s", queue, uuid.NewString()), nil
}

func (d *Dispatcher) Revoke(ctx context.Context, handle string, terminate bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.RevokeErr != nil {
		return d.RevokeErr
	}
	d.Revoked = append(d.Revoked, handle)
	return nil
}

func (d *Dispatcher) Status(ctx context.Context, handle string) (services.DispatchStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State.State == "" {
		return services.DispatchStatus{State: services.DispatchPending}, nil
	}
	return d.State, nil
}
