package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/pkg/errors"
	"storefront/pkg/logger"
)

const (
	// TraceIDHeader is the header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDHeader carries the authenticated user identity, set by the
	// upstream auth proxy. Authentication itself happens before this service.
	UserIDHeader = "X-User-ID"
	// UserIDKey is the context key for the authenticated user
	UserIDKey = "user_id"
	// RoleHeader carries the caller's role, set by the upstream auth proxy
	RoleHeader = "X-User-Role"
	// RoleKey is the context key for the caller's role
	RoleKey = "user_role"
)

// ErrorHandler is a middleware that handles errors and panics
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				traceID := c.GetString(TraceIDKey)
				log.WithContext(c.Request.Context()).Error("panic recovered",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
					zap.String("trace_id", traceID),
				)

				c.Header(TraceIDHeader, traceID)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errors.ErrorResponse{
					Error: errors.ErrorBody{
						Code:    errors.CodeInternal,
						Message: "An internal error occurred",
					},
					TraceID: traceID,
				})
			}
		}()

		c.Next()

		// Handle errors set by handlers
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			traceID := c.GetString(TraceIDKey)
			statusCode, jsonResponse := errors.ToJSON(err, traceID)

			log.WithContext(c.Request.Context()).Error("request error",
				zap.Error(err),
				zap.Int("status", statusCode),
				zap.String("trace_id", traceID),
			)

			if retryAfter := errors.RetryAfter(err); retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}

			c.Header(TraceIDHeader, traceID)
			c.Data(statusCode, "application/json", jsonResponse)
		}
	}
}

// TraceID is a middleware that generates or extracts trace ID
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		// Add trace ID to request context
		ctx := logger.WithTraceIDContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// Identity extracts the authenticated user identity and role supplied by
// the upstream auth layer. Routes behind RequireUser reject anonymous
// callers.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			c.Set(UserIDKey, userID)
		}
		if role := c.GetHeader(RoleHeader); role != "" {
			c.Set(RoleKey, role)
		}
		c.Next()
	}
}

// RequireUser rejects requests without an authenticated identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(UserIDKey) == "" {
			c.Error(errors.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.Error(errors.NewForbidden("insufficient role for this operation"))
		c.Abort()
	}
}

// Limiter is the rate limiting capability consumed by the RateLimit
// middleware. Satisfied by internal/security.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (retryAfter time.Duration, allowed bool, err error)
}

// RateLimit applies rate limiting keyed by (client IP, user-or-anonymous)
func RateLimit(limiter Limiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetString(UserIDKey)
		if user == "" {
			user = "anonymous"
		}
		key := c.ClientIP() + ":" + user

		retryAfter, allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// Fail open on store errors
			log.WithContext(c.Request.Context()).Error("rate limiter store error",
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			log.WithContext(c.Request.Context()).Warn("rate limit exceeded",
				zap.String("key", key),
				zap.Int("retry_after_seconds", seconds),
			)
			c.Error(errors.NewRateLimited("too many requests", seconds))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Sanitizer scrubs a decoded JSON object. Satisfied by
// internal/security.SanitizeMap.
type Sanitizer func(map[string]interface{}) map[string]interface{}

// SanitizeBody rewrites JSON object request bodies through the sanitizer
// before handlers bind them. Non-JSON bodies and non-object payloads pass
// through untouched; malformed JSON is left for the handler's binding to
// reject. Must not be applied to signature-verified routes: the webhook
// signature covers the exact bytes on the wire.
func SanitizeBody(sanitize Sanitizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 || c.ContentType() != "application/json" {
			c.Next()
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Error(errors.NewValidation("unreadable request body", nil))
			c.Abort()
			return
		}

		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		var decoded map[string]interface{}
		if err := decoder.Decode(&decoded); err != nil {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		clean, err := json.Marshal(sanitize(decoded))
		if err != nil {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(clean))
		c.Request.ContentLength = int64(len(clean))
		c.Next()
	}
}

// RequestLogger logs all HTTP requests
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		traceID := c.GetString(TraceIDKey)

		log.WithContext(c.Request.Context()).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", traceID),
		)
	}
}

// CORS is a middleware that handles CORS
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Trace-ID, X-User-ID")
		c.Header("Access-Control-Expose-Headers", "X-Trace-ID, Retry-After")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
