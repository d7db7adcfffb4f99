package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelhub-backend/internal/api"
	"modelhub-backend/internal/api/apitest"
	v1user "modelhub-backend/internal/api/v1/user"
	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const origin = "http://localhost:5173"

func newRouter(t *testing.T, env *apitest.Env) *gin.Engine {
	return api.NewRouter(api.Deps{
		Logger:       zaptest.NewLogger(t),
		CORSOrigins:  []string{origin},
		APIKeyHeader: "X-API-Key",
		Auth:         env.Auth,
		Users:        env.Users,
		APIKeys:      env.APIKeys,
		Tasks:        env.Tasks,
		Models:       env.Models,
		Health:       env.Health,
		ActiveUsers:  env.Active,
	})
}

func login(t *testing.T, r http.Handler, username string) string {
	t.Helper()
	w := apitest.Do(t, r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username, "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp v1user.UserResponse
	apitest.Decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func send(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterAccessControl(t *testing.T) {
	env := apitest.NewEnv(t)
	env.CreateUser(t, "alice", models.RoleUser)
	env.CreateUser(t, "root", models.RoleAdmin)
	r := newRouter(t, env)

	userToken := login(t, r, "alice")
	adminToken := login(t, r, "root")
	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}

	tests := []struct {
		name           string
		method         string
		path           string
		header         http.Header
		expectedStatus int
	}{
		{name: "public health", method: http.MethodGet, path: "/api/v1/health", expectedStatus: http.StatusOK},
		{name: "tasks need auth", method: http.MethodGet, path: "/api/v1/tasks", expectedStatus: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/v1/users/me", header: bearer("nope"), expectedStatus: http.StatusUnauthorized},
		{name: "me", method: http.MethodGet, path: "/api/v1/users/me", header: bearer(userToken), expectedStatus: http.StatusOK},
		{name: "own tasks", method: http.MethodGet, path: "/api/v1/tasks", header: bearer(userToken), expectedStatus: http.StatusOK},
		{name: "models", method: http.MethodGet, path: "/api/v1/models", header: bearer(userToken), expectedStatus: http.StatusOK},
		{name: "api keys", method: http.MethodGet, path: "/api/v1/api-keys", header: bearer(userToken), expectedStatus: http.StatusOK},
		{name: "admin users forbidden", method: http.MethodGet, path: "/api/v1/admin/users", header: bearer(userToken), expectedStatus: http.StatusForbidden},
		{name: "admin users", method: http.MethodGet, path: "/api/v1/admin/users", header: bearer(adminToken), expectedStatus: http.StatusOK},
		{name: "worker health", method: http.MethodGet, path: "/api/v1/admin/health/workers", header: bearer(adminToken), expectedStatus: http.StatusOK},
		{name: "upload token not mounted", method: http.MethodGet, path: "/api/v1/common/upload/token", header: bearer(userToken), expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(r, tt.method, tt.path, tt.header)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 2, env.Active.Count())
}

func TestRouterAPIKeyAuth(t *testing.T) {
	env := apitest.NewEnv(t)
	alice := env.CreateUser(t, "alice", models.RoleUser)
	r := newRouter(t, env)

	key, raw, err := env.APIKeys.Create(context.Background(), services.CreateAPIKeyParams{Name: "ci", UserID: alice.ID})
	require.NoError(t, err)

	w := send(r, http.MethodGet, "/api/v1/users/me", http.Header{"X-Api-Key": []string{raw}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me v1user.UserResponse
	apitest.Decode(t, w, &me)
	assert.Equal(t, alice.ID, me.ID)

	stored, err := env.APIKeys.Get(context.Background(), key.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsageCount)

	w = send(r, http.MethodGet, "/api/v1/users/me", http.Header{"X-Api-Key": []string{"not-a-key"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterLogoutRevokesToken(t *testing.T) {
	env := apitest.NewEnv(t)
	env.CreateUser(t, "alice", models.RoleUser)
	r := newRouter(t, env)
	header := http.Header{"Authorization": []string{"Bearer " + login(t, r, "alice")}}

	require.Equal(t, http.StatusOK, send(r, http.MethodPost, "/api/v1/auth/logout", header).Code)
	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/api/v1/users/me", header).Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	env := apitest.NewEnv(t)
	r := newRouter(t, env)

	w := send(r, http.MethodOptions, "/api/v1/tasks", http.Header{
		"Origin":                        []string{origin},
		"Access-Control-Request-Method": []string{http.MethodPatch},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}
