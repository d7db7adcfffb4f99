package middleware

import (
	"time"

	"modelhub-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// Logger logs one line per request, at a level chosen by the response status.
// It honours an incoming X-Request-ID and generates one otherwise.
func Logger(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrGlobal(log)
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("RequestID", requestID)

		c.Next()

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				log.Error(e, zap.String("request_id", requestID))
			}
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
		}
		if user, ok := CurrentUser(c); ok {
			fields = append(fields, zap.String("user_id", user.ID))
		}

		switch {
		case status >= 500:
			log.Error("Server Error", fields...)
		case status >= 400:
			log.Warn("Client Error", fields...)
		default:
			log.Info("Request", fields...)
		}
	}
}
