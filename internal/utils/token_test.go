package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_EXPIRE_HOURS", "2")

	token, err := GenerateToken("user-1", "admin")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestValidateTokenRejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	sign := func(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "wrong secret",
			token: sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		},
		{
			name:  "expired",
			token: sign(t, jwt.SigningMethodHS256, []byte("test-secret"), Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}),
		},
		{
			name:  "no expiry",
			token: sign(t, jwt.SigningMethodHS256, []byte("test-secret"), Claims{UserID: "u"}),
		},
		{
			name:  "other algorithm",
			token: sign(t, jwt.SigningMethodHS512, []byte("test-secret"), Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		},
		{
			name:  "no user id",
			token: sign(t, jwt.SigningMethodHS256, []byte("test-secret"), Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		},
		{
			name:  "garbage",
			token: "not-a-jwt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestGenerateTokenWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := GenerateToken("user-1", "user")
	assert.ErrorIs(t, err, ErrNoJWTSecret)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer abc.def", want: "abc.def"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "missing", header: "", wantErr: ErrMissingAuthHeader},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantErr: ErrNotBearer},
		{name: "empty token", header: "Bearer ", wantErr: ErrNotBearer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractToken(c)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAbortWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AbortWithError(c, http.StatusForbidden, "")
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"status":403,"message":"Forbidden","data":null,"detail":"Forbidden"}`, w.Body.String())
}
