package utils

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"modelhub-backend/pkg/logger"

	"go.uber.org/zap"
)

const maxLoggedBody = 2000

// LoggingTransport implements http.RoundTripper and logs requests and responses
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// RoundTrip executes a single HTTP transaction and logs the request and response
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := logger.OrGlobal(t.Logger)

	reqBody := ""
	if req.Body != nil {
		bodyBytes, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		reqBody = truncate(bodyBytes)
	}
	log.Debug("http request", zap.String("method", req.Method), zap.String("url", req.URL.String()), zap.String("body", reqBody))

	start := time.Now()

	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	resp, err := transport.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		log.Warn("http request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	respBody := ""
	if resp.Body != nil {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		respBody = truncate(bodyBytes)
	}

	log.Info("http response",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
		zap.String("body", respBody))

	return resp, nil
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// NewHTTPClient returns a new http.Client with logging enabled
func NewHTTPClient(timeout time.Duration, log *zap.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &LoggingTransport{
			Transport: http.DefaultTransport,
			Logger:    log,
		},
	}
}
