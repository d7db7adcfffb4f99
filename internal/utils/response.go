package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON answer. Data is always present and
// null on errors, which also repeat the message as detail.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Detail  string      `json:"detail,omitempty"`
}

func NewResponse(status int, message string, data interface{}) Response {
	return Response{Status: status, Message: message, Data: data}
}

func NewSuccessResponse(message string, data interface{}) Response {
	return NewResponse(http.StatusOK, message, data)
}

// NewErrorResponse falls back to the status text when message is empty.
func NewErrorResponse(status int, message string) Response {
	if message == "" {
		message = http.StatusText(status)
	}
	return Response{Status: status, Message: message, Detail: message}
}

// AbortWithError writes an error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(status, message))
}
