package rest

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
)

// LoggingMiddleware logs every request with a request id and duration.
type LoggingMiddleware struct {
	logger *logger.Logger
}

// NewLoggingMiddleware constructs a LoggingMiddleware.
func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log}
}

// RequestLogger returns the gin handler.
func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		m.logger.Info("request started",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			m.logger.Error("request completed", args...)
		case status >= 400:
			m.logger.Warn("request completed", args...)
		default:
			m.logger.Info("request completed", args...)
		}
	}
}

// RecoveryMiddleware converts a panic into a 500 APIError response.
type RecoveryMiddleware struct {
	logger *logger.Logger
}

// NewRecoveryMiddleware constructs a RecoveryMiddleware.
func NewRecoveryMiddleware(log *logger.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: log}
}

// Recovery returns the gin handler.
func (m *RecoveryMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic recovered",
					"request_id", c.GetString(ContextKeyRequestID),
					"path", c.Request.URL.Path,
					"error", err,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrInternal)
			}
		}()
		c.Next()
	}
}

// AuthMiddleware checks the request against a configured set of API keys,
// accepted either as a Bearer token or as an api_key query parameter so the
// EventSource and WebSocket clients (which cannot set headers) can
// authenticate too.
type AuthMiddleware struct {
	keys map[string]struct{}
}

// NewAuthMiddleware constructs an AuthMiddleware. An empty key set disables
// authentication entirely, useful for local development.
func NewAuthMiddleware(keys []string) *AuthMiddleware {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &AuthMiddleware{keys: set}
}

// RequireAPIKey returns the gin handler.
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.keys) == 0 {
			c.Next()
			return
		}

		token := c.Query("api_key")
		if token == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if _, ok := m.keys[token]; !ok {
			respondError(c, ErrUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}
