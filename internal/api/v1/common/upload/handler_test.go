package upload_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelhub-backend/internal/api/v1/common/upload"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	creds *services.STSCredentials
	err   error
}

func (f fakeIssuer) Issue() (*services.STSCredentials, error) { return f.creds, f.err }

func TestGetOSSToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		issuer     fakeIssuer
		wantStatus int
	}{
		{
			name:       "issued",
			issuer:     fakeIssuer{creds: &services.STSCredentials{AccessKeyId: "ak", Bucket: "models"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not configured",
			issuer:     fakeIssuer{err: services.ErrSTSNotConfigured},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "sts failure",
			issuer:     fakeIssuer{err: errors.New("assume role denied")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			upload.NewHandler(tt.issuer).RegisterRoutes(r.Group("/api/v1"))

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/common/upload/token", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp utils.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantStatus == http.StatusOK {
				data := resp.Data.(map[string]interface{})
				assert.Equal(t, "ak", data["accessKeyId"])
			} else {
				assert.NotEmpty(t, resp.Detail)
			}
		})
	}
}
