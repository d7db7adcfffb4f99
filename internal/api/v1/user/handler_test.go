package user_test

import (
	"net/http"
	"testing"

	"modelhub-backend/internal/api/apitest"
	"modelhub-backend/internal/api/v1/user"
	"modelhub-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentUser(t *testing.T) {
	env := apitest.NewEnv(t)
	u := env.CreateUser(t, "alice", models.RoleDeveloper)

	r, api := apitest.Router(u)
	user.NewHandler(env.Users).RegisterRoutes(api)

	w := apitest.Do(t, r, http.MethodGet, "/api/v1/users/me", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data user.UserResponse
	resp := apitest.Decode(t, w, &data)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, u.ID, data.ID)
	assert.Equal(t, "alice@example.com", data.Email)
	assert.Equal(t, models.RoleDeveloper, data.Role)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestCurrentUserUnauthenticated(t *testing.T) {
	env := apitest.NewEnv(t)
	r, api := apitest.Router(models.User{})
	user.NewHandler(env.Users).RegisterRoutes(api)

	w := apitest.Do(t, r, http.MethodGet, "/api/v1/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateCurrentUser(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		checkResponse  func(t *testing.T, data user.UserResponse)
	}{
		{
			name:           "updates profile fields",
			body:           map[string]interface{}{"full_name": "Alice A.", "email": "NEW@Example.com"},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, data user.UserResponse) {
				assert.Equal(t, "Alice A.", data.FullName)
				assert.Equal(t, "new@example.com", data.Email)
				assert.Equal(t, 2, data.Version)
			},
		},
		{
			name:           "own role cannot change",
			body:           map[string]interface{}{"role": "admin"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unchanged role is accepted",
			body:           map[string]interface{}{"role": "user", "full_name": "Same Role"},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, data user.UserResponse) {
				assert.Equal(t, models.RoleUser, data.Role)
			},
		},
		{
			name:           "empty body",
			body:           map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "short password",
			body:           map[string]interface{}{"password": "123"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := apitest.NewEnv(t)
			u := env.CreateUser(t, "alice", models.RoleUser)
			r, api := apitest.Router(u)
			user.NewHandler(env.Users).RegisterRoutes(api)

			w := apitest.Do(t, r, http.MethodPut, "/api/v1/users/me", tt.body)
			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.checkResponse != nil {
				var data user.UserResponse
				apitest.Decode(t, w, &data)
				tt.checkResponse(t, data)
			}

			var stored models.User
			require.NoError(t, env.DB.First(&stored, "id = ?", u.ID).Error)
			if tt.expectedStatus != http.StatusOK {
				assert.Equal(t, 1, stored.Version)
			}
			assert.Equal(t, u.Role, stored.Role)
		})
	}
}
