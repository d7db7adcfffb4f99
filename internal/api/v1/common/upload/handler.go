package upload

import (
	"net/http"

	"modelhub-backend/internal/api/v1/common"
	"modelhub-backend/internal/services"
	"modelhub-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// TokenIssuer issues short-lived credentials for direct artifact uploads.
type TokenIssuer interface {
	Issue() (*services.STSCredentials, error)
}

type Handler struct {
	issuer TokenIssuer
}

func NewHandler(issuer TokenIssuer) *Handler {
	return &Handler{issuer: issuer}
}

// GetOSSToken godoc
// @Summary Get OSS STS Token
// @Description Get STS token for uploading model artifacts directly to Alibaba Cloud OSS
// @Tags common
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=services.STSCredentials}
// @Failure 401 {object} utils.Response
// @Failure 503 {object} utils.Response
// @Router /common/upload/token [get]
func (h *Handler) GetOSSToken(c *gin.Context) {
	token, err := h.issuer.Issue()
	if err != nil {
		if common.StatusFor(err) == http.StatusServiceUnavailable {
			common.Fail(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		common.Fail(c, http.StatusInternalServerError, "Failed to get OSS token: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OSS token retrieved successfully", token))
}
