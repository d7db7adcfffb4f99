package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeAuth struct {
	tokens map[string]models.User
	keys   map[string]models.User
	err    error
}

func (f *fakeAuth) AuthenticateToken(ctx context.Context, token string) (models.User, error) {
	if f.err != nil {
		return models.User{}, f.err
	}
	if u, ok := f.tokens[token]; ok {
		return u, nil
	}
	return models.User{}, services.ErrTokenRevoked
}

func (f *fakeAuth) AuthenticateAPIKey(ctx context.Context, key string) (models.User, error) {
	if u, ok := f.keys[key]; ok {
		return u, nil
	}
	return models.User{}, services.ErrAPIKeyInvalid
}

func newTestRouter(auth Authenticator, tracker *services.ActiveUsers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", AuthMiddleware(auth, tracker, "X-API-Key"))
	authed.GET("/me", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.String(http.StatusOK, user.Username)
	})
	authed.GET("/admin", AdminAuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	alice := models.User{ID: "u1", Username: "alice", Role: models.RoleUser, IsActive: true}
	root := models.User{ID: "u2", Username: "root", Role: models.RoleSuperAdmin, IsActive: true}
	auth := &fakeAuth{
		tokens: map[string]models.User{"alice-token": alice, "root-token": root},
		keys:   map[string]models.User{"alice-key": alice},
	}
	tracker := services.NewActiveUsers(time.Minute)
	r := newTestRouter(auth, tracker)

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", path: "/me", wantStatus: http.StatusUnauthorized, wantBody: "authorization header is required"},
		{name: "not bearer", path: "/me", headers: map[string]string{"Authorization": "Token x"}, wantStatus: http.StatusUnauthorized, wantBody: "bearer token not found"},
		{name: "revoked token", path: "/me", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized, wantBody: "Token has been revoked"},
		{name: "valid token", path: "/me", headers: map[string]string{"Authorization": "Bearer alice-token"}, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "valid api key", path: "/me", headers: map[string]string{"X-API-Key": "alice-key"}, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "bad api key", path: "/me", headers: map[string]string{"X-API-Key": "stolen"}, wantStatus: http.StatusUnauthorized, wantBody: "Invalid or expired API key"},
		{name: "non admin", path: "/admin", headers: map[string]string{"Authorization": "Bearer alice-token"}, wantStatus: http.StatusForbidden, wantBody: "Forbidden: Admins only"},
		{name: "super admin", path: "/admin", headers: map[string]string{"Authorization": "Bearer root-token"}, wantStatus: http.StatusOK, wantBody: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}

	assert.Equal(t, 2, tracker.Count())
}

func TestAuthMiddlewareInactiveUser(t *testing.T) {
	r := newTestRouter(&fakeAuth{err: services.ErrInactiveUser}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "User account is disabled")
}

func TestAdminMiddlewareWithoutUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AdminAuthMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
